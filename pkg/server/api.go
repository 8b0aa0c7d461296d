// Copyright 2026 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/go-chi/chi/v5"
	"github.com/go-kit/log/level"
	json "github.com/goccy/go-json"

	"github.com/parca-dev/stackgraph/pkg/calltree"
	"github.com/parca-dev/stackgraph/pkg/session"
	"github.com/parca-dev/stackgraph/pkg/transform"
)

const defaultMaxDepth = 32

var errNoSession = errors.New("no profile loaded")

type ThreadSummary struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	ProcessName string `json:"processName,omitempty"`
	Samples     int    `json:"samples"`
	Transforms  string `json:"transforms,omitempty"`
}

type CallNode struct {
	Node         int     `json:"node"`
	Parent       int     `json:"parent"`
	Depth        int     `json:"depth"`
	Path         string  `json:"path"`
	Name         string  `json:"name"`
	Lib          string  `json:"lib,omitempty"`
	Category     string  `json:"category,omitempty"`
	Total        float64 `json:"total"`
	Self         float64 `json:"self"`
	TotalPercent string  `json:"totalPercent"`
	HasChildren  bool    `json:"hasChildren"`
}

type CallTreeResponse struct {
	Transforms string     `json:"transforms"`
	Inverted   bool       `json:"inverted"`
	RootTotal  float64    `json:"rootTotal"`
	Selected   string     `json:"selected,omitempty"`
	Nodes      []CallNode `json:"nodes"`
}

type StackTimingRow struct {
	Start    []float64 `json:"start"`
	End      []float64 `json:"end"`
	CallNode []int     `json:"callNode"`
}

type TransformsResponse struct {
	Transforms string   `json:"transforms"`
	Labels     []string `json:"labels"`
}

func (s *Server) current() (*session.Session, error) {
	sess := s.session.Load()
	if sess == nil {
		return nil, errNoSession
	}
	return sess, nil
}

func (s *Server) threads(w http.ResponseWriter, r *http.Request) {
	sess, err := s.current()
	if err != nil {
		s.writeError(w, err)
		return
	}

	res := make([]ThreadSummary, 0, len(sess.Profile().Threads))
	for i, t := range sess.Profile().Threads {
		res = append(res, ThreadSummary{
			Index:       i,
			Name:        t.Name,
			ProcessName: t.ProcessName,
			Samples:     t.Samples.Len(),
			Transforms:  transform.Stringify(sess.Transforms(i)),
		})
	}
	s.writeJSON(w, res)
}

// threadRequest resolves the thread and transform stack of a request. A
// request without a transforms parameter uses the session's stack.
func (s *Server) threadRequest(r *http.Request) (*session.Session, int, transform.Stack, error) {
	sess, err := s.current()
	if err != nil {
		return nil, 0, nil, err
	}
	thread, err := strconv.Atoi(chi.URLParam(r, "thread"))
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: %q", session.ErrUnknownThread, chi.URLParam(r, "thread"))
	}
	q := r.URL.Query()
	if !q.Has("transforms") {
		return sess, thread, sess.Transforms(thread), nil
	}
	stack, err := transform.Parse(q.Get("transforms"))
	if err != nil {
		return nil, 0, nil, err
	}
	return sess, thread, stack, nil
}

func (s *Server) tree(r *http.Request) (*session.Session, int, transform.Stack, *calltree.Tree, error) {
	sess, thread, stack, err := s.threadRequest(r)
	if err != nil {
		return nil, 0, nil, nil, err
	}
	tree, err := sess.CallTree(r.Context(), thread, stack, inverted(r))
	if err != nil {
		return nil, 0, nil, nil, err
	}
	return sess, thread, stack, tree, nil
}

func inverted(r *http.Request) bool {
	invert, _ := strconv.ParseBool(r.URL.Query().Get("invert"))
	return invert
}

func (s *Server) callTree(w http.ResponseWriter, r *http.Request) {
	sess, thread, stack, tree, err := s.tree(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	maxDepth := defaultMaxDepth
	if d := r.URL.Query().Get("depth"); d != "" {
		if maxDepth, err = strconv.Atoi(d); err != nil || maxDepth < 0 {
			http.Error(w, "invalid depth", http.StatusBadRequest)
			return
		}
	}

	info := tree.Info()
	invert := inverted(r)
	res := CallTreeResponse{
		Transforms: transform.Stringify(stack),
		Inverted:   invert,
		RootTotal:  tree.Counts().RootTotalSummary,
		Nodes:      []CallNode{},
	}
	if selected := sess.SelectedPath(thread); len(selected) > 0 {
		res.Selected = transform.EncodePath(selected)
	}
	tree.Walk(func(node, depth int) bool {
		data := tree.NodeData(node)
		display := tree.DisplayData(node)
		res.Nodes = append(res.Nodes, CallNode{
			Node:         node,
			Parent:       tree.Parent(node),
			Depth:        depth,
			Path:         transform.EncodePath(info.PathFromIndex(node)),
			Name:         display.Name,
			Lib:          display.Lib,
			Category:     display.CategoryName,
			Total:        data.Total,
			Self:         data.Self,
			TotalPercent: display.TotalPercent,
			HasChildren:  tree.HasChildren(node),
		})
		return depth < maxDepth
	})
	s.writeJSON(w, res)
}

func (s *Server) callTreeArrow(w http.ResponseWriter, r *http.Request) {
	_, _, _, tree, err := s.tree(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	buf, err := calltree.ArrowIPC(memory.DefaultAllocator, tree)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
	if _, err := w.Write(buf); err != nil {
		level.Debug(s.logger).Log("msg", "failed to write response", "err", err)
	}
}

func (s *Server) stackTiming(w http.ResponseWriter, r *http.Request) {
	sess, thread, stack, err := s.threadRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	timing, err := sess.StackTiming(r.Context(), thread, stack)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res := make([]StackTimingRow, 0, len(timing))
	for _, row := range timing {
		res = append(res, StackTimingRow{Start: row.Start, End: row.End, CallNode: row.CallNode})
	}
	s.writeJSON(w, res)
}

func (s *Server) transforms(w http.ResponseWriter, r *http.Request) {
	sess, thread, stack, err := s.threadRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	t, err := sess.Thread(r.Context(), thread, stack)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, TransformsResponse{
		Transforms: transform.Stringify(stack),
		Labels:     transform.Labels(t, stack),
	})
}

// pushTransform reads one or more URL encoded transforms from the body and
// pushes them onto the thread's stack in order.
func (s *Server) pushTransform(w http.ResponseWriter, r *http.Request) {
	sess, err := s.current()
	if err != nil {
		s.writeError(w, err)
		return
	}
	thread, err := strconv.Atoi(chi.URLParam(r, "thread"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %q", session.ErrUnknownThread, chi.URLParam(r, "thread")))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, err)
		return
	}
	stack, err := transform.Parse(strings.TrimSpace(string(body)))
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, t := range stack {
		if err := sess.PushTransform(r.Context(), thread, t); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.writeJSON(w, TransformsResponse{Transforms: transform.Stringify(sess.Transforms(thread))})
}

func (s *Server) popTransform(w http.ResponseWriter, r *http.Request) {
	sess, err := s.current()
	if err != nil {
		s.writeError(w, err)
		return
	}
	thread, err := strconv.Atoi(chi.URLParam(r, "thread"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %q", session.ErrUnknownThread, chi.URLParam(r, "thread")))
		return
	}
	if _, ok := sess.PopTransform(thread); !ok {
		http.Error(w, "transform stack is empty", http.StatusConflict)
		return
	}
	s.writeJSON(w, TransformsResponse{Transforms: transform.Stringify(sess.Transforms(thread))})
}

// selectPath sets the selected call node from the "path" query parameter,
// an encoded call node path.
func (s *Server) selectPath(w http.ResponseWriter, r *http.Request) {
	sess, thread, stack, err := s.threadRequest(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	path, err := transform.DecodePath(r.URL.Query().Get("path"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	info, err := sess.CallNodeInfo(r.Context(), thread, stack)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, ok := info.IndexFromPath(path); !ok {
		http.Error(w, "call node path not found", http.StatusNotFound)
		return
	}
	sess.SetSelectedPath(thread, path)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		level.Debug(s.logger).Log("msg", "failed to write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errNoSession):
		code = http.StatusServiceUnavailable
	case errors.Is(err, session.ErrUnknownThread):
		code = http.StatusNotFound
	case errors.Is(err, transform.ErrInvalidTransform):
		code = http.StatusBadRequest
	default:
		level.Error(s.logger).Log("msg", "request failed", "err", err)
	}
	http.Error(w, err.Error(), code)
}
