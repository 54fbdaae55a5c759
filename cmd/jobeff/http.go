package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"nhooyr.io/websocket"

	"github.com/happyface/jobeff"
	"github.com/happyface/jobeff/download"
	"github.com/happyface/jobeff/recorder"
)

type resultEvent struct {
	Run      jobeff.Run
	Instance string
	Record   jobeff.ResultRecord
}

type closeCh chan struct{}
type resultPubSub struct {
	sync.RWMutex
	listeners map[chan<- resultEvent]closeCh
}

func newResultPubSub() *resultPubSub {
	return &resultPubSub{
		listeners: make(map[chan<- resultEvent]closeCh),
	}
}

func (rps *resultPubSub) AddResultListener(ch chan<- resultEvent) {
	rps.Lock()
	defer rps.Unlock()
	rps.listeners[ch] = make(closeCh)
}

func (rps *resultPubSub) RemoveResultListener(ch chan<- resultEvent) {
	rps.Lock()
	defer rps.Unlock()

	quit, ok := rps.listeners[ch]
	if !ok {
		// Already unsubscribed?
		return
	}
	// ch stays open: the subscriber owns it and a publish may still be
	// selecting on it until it sees quit.
	close(quit)
	delete(rps.listeners, ch)
}

func (rps *resultPubSub) PublishResult(e resultEvent) {
	rps.RLock()
	defer rps.RUnlock()
	slog.Debug("will send result to listeners", "nChs", len(rps.listeners))
	for ch, quit := range rps.listeners {
		go func(ch chan<- resultEvent, quit closeCh) {
			// Wait for either the message to be received
			// or the channel to have been unsubscribed
			// (through closing quit).
			select {
			case <-quit:
			case ch <- e:
			}
		}(ch, quit)
	}
}

// resultCard is what the page shows for one instance.
type resultCard struct {
	Instance   string
	Ready      bool
	RunTime    string
	Snapshot   string
	SourceURL  string
	EffPlot    string
	RelEffPlot string
}

func newResultCard(instance string, run jobeff.Run, rec jobeff.ResultRecord) resultCard {
	card := resultCard{
		Instance:  instance,
		Ready:     true,
		RunTime:   run.Time.Format(time.DateTime),
		Snapshot:  snapshotTime(rec.ResultTimestamp),
		SourceURL: rec.SourceURL,
	}
	dir := download.RunDir(run)
	if rec.EffPlotFilename != "" {
		card.EffPlot = path.Join("/archive", dir, rec.EffPlotFilename)
	}
	if rec.RelEffPlotFilename != "" {
		card.RelEffPlot = path.Join("/archive", dir, rec.RelEffPlotFilename)
	}
	return card
}

func (a *app) sendResultEvent(ctx context.Context, c *websocket.Conn, e resultEvent) error {
	msg := new(bytes.Buffer)
	err := resultViewHTML.ExecuteTemplate(msg, "result-card", newResultCard(e.Instance, e.Run, e.Record))
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, msg.Bytes())
}

func (a *app) resultWSHandler(w http.ResponseWriter, req *http.Request) {
	c, err := websocket.Accept(w, req, nil)
	if err != nil {
		slog.Error("failed to accept ws connection", "err", err)
		return
	}
	defer c.CloseNow() // nolint: errcheck

	ctx, cancel := context.WithTimeout(req.Context(), time.Hour)
	defer cancel()

	ctx = c.CloseRead(ctx)

	ch := make(chan resultEvent)
	a.AddResultListener(ch)
	defer a.RemoveResultListener(ch)

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case e := <-ch:
			err = a.sendResultEvent(ctx, c, e)
			if err != nil {
				slog.Error("failed to send result event to ws", "err", err)
				return
			}
		}
	}
}

func (a *app) resultIndexHandler(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	var cards []resultCard
	for _, inst := range a.instances {
		run, rec, err := a.rec.LatestResult(inst.Name)
		if errors.Is(err, recorder.ErrNoResult) {
			cards = append(cards, resultCard{Instance: inst.Name})
			continue
		}
		if err != nil {
			slog.Error("failed to load latest result", "instance", inst.Name, "err", err)
			http.Error(w, "failed to load results", http.StatusInternalServerError)
			return
		}
		cards = append(cards, newResultCard(inst.Name, run, rec))
	}

	err := resultViewHTML.Execute(w, struct {
		Cards   []resultCard
		Watch   bool
		DocsURL string
	}{
		Cards:   cards,
		Watch:   *watch,
		DocsURL: a.config.DocsURL,
	})
	if err != nil {
		slog.Error("failed to render result index template", "err", err)
		http.Error(w, "failed to render result template", http.StatusInternalServerError)
		return
	}
}

func (a *app) newRouter() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", a.resultIndexHandler).Methods("GET")
	r.HandleFunc("/ws", a.resultWSHandler)
	r.Handle("/metrics", a.metrics.Handler()).Methods("GET")
	r.PathPrefix("/archive/").Handler(
		http.StripPrefix("/archive/", http.FileServer(http.Dir(a.site.ArchiveDir)))).Methods("GET")
	return handlers.LoggingHandler(os.Stderr, r)
}

// startServer serves the latest results until ctx is done. In watch mode
// new results are acquired at the configured rate.
func (a *app) startServer(ctx context.Context) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%v", *httpServerPort))
	if err != nil {
		slog.Error("failed to open http server", "err", err)
		os.Exit(1)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	srv := &http.Server{Handler: a.newRouter()}
	go func() {
		fmt.Printf("\nStarted server on port %v. Go to: \nhttp://%v:%v/ \n\n", port, hostname, port)
		err := srv.Serve(ln)
		slog.Debug("server exit", "err", err)
	}()
	defer srv.Close()

	var updateCh <-chan time.Time
	if *watch {
		ticker := time.NewTicker(a.config.Rate)
		defer ticker.Stop()
		updateCh = ticker.C
	}
	if _, err := a.runOnce(ctx); err != nil {
		slog.Error("run failed", "err", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-updateCh:
			_, err := a.runOnce(ctx)
			if err != nil {
				slog.Error("run failed", "err", err)
			}
		}
	}
}

//go:embed result_view.tmpl.html
var resultViewHTMLString string
var resultViewHTML = template.Must(template.New("result-index").Parse(resultViewHTMLString))
