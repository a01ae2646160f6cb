// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/log"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/report"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/stat"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServer serves the status of a running manager.
type HTTPServer struct {
	Addr      string
	Mgr       *Manager
	StartTime time.Time
}

func (serv *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, handler func(http.ResponseWriter, *http.Request)) {
		mux.Handle(pattern, handlers.CompressHandler(http.HandlerFunc(handler)))
	}
	handle("/", serv.httpMain)
	handle("/findings", serv.httpFindings)
	handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}).ServeHTTP)
	// Browsers like to request this, without special handler this goes to / handler.
	handle("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {})
	return mux
}

func (serv *HTTPServer) Serve(ctx context.Context) error {
	if serv.Addr == "" {
		return fmt.Errorf("starting a disabled HTTP server")
	}
	log.Logf(0, "serving http on http://%v", serv.Addr)
	server := &http.Server{Addr: serv.Addr, Handler: serv.Handler()}
	go func() {
		<-ctx.Done()
		server.Close()
	}()
	err := server.ListenAndServe()
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (serv *HTTPServer) httpMain(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "uptime: %v\n", time.Since(serv.StartTime).Round(time.Second))
	for _, v := range stat.Collect(stat.All) {
		fmt.Fprintf(buf, "%v: %v\n", v.Name, v.Value)
	}
	fmt.Fprintf(buf, "\nfindings:\n")
	for _, f := range serv.Mgr.Findings() {
		fmt.Fprintf(buf, "%v\n", f.Summary())
	}
	fmt.Fprintf(buf, "\nlog:\n%v", log.CachedLogOutput())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(buf.Bytes())
}

type uiFinding struct {
	Kind            string   `json:"kind"`
	Tier            string   `json:"tier"`
	Tool            string   `json:"tool"`
	Channel         string   `json:"channel"`
	File            string   `json:"file"`
	Flags           []string `json:"flags"`
	RequiresFeature bool     `json:"requires_feature"`
	Reason          string   `json:"reason"`
}

func (serv *HTTPServer) httpFindings(w http.ResponseWriter, r *http.Request) {
	res := []uiFinding{}
	for _, f := range serv.Mgr.Findings() {
		if tool := r.FormValue("tool"); tool != "" && !strings.EqualFold(tool, f.Tool.String()) {
			continue
		}
		res = append(res, uiFinding{
			Kind:            f.Kind.String(),
			Tier:            report.TierOf(f.Kind).String(),
			Tool:            f.Tool.String(),
			Channel:         f.Channel.String(),
			File:            f.File,
			Flags:           f.Flags,
			RequiresFeature: f.RequiresFeature,
			Reason:          f.Reason,
		})
	}
	data, err := json.MarshalIndent(res, "", "\t")
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode json: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
