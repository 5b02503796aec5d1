package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pulseboard/feedmirror/internal/auth"
	"github.com/pulseboard/feedmirror/internal/entities"
	"github.com/pulseboard/feedmirror/internal/feed"
	"github.com/pulseboard/feedmirror/internal/realtime"
	"github.com/pulseboard/feedmirror/internal/realtime/websocket"
	"github.com/pulseboard/feedmirror/internal/remote/httpapi"
	"github.com/pulseboard/feedmirror/internal/server"
)

// nolint:lll,gochecknoglobals
var opts = struct {
	Host string `long:"http.host" env:"HTTP_HOST" default:"0.0.0.0" description:"IP to listen on"`
	Port int    `long:"http.port" env:"HTTP_PORT" default:"8080" description:"port to listen on"`

	RemoteURL     string        `long:"remote.url" env:"REMOTE_URL" default:"http://localhost:8081" description:"feed backend base url"`
	RemoteTimeout time.Duration `long:"remote.timeout" env:"REMOTE_TIMEOUT" default:"10s" description:"timeout for requests to the backend"`
	StreamURL     string        `long:"remote.stream_url" env:"REMOTE_STREAM_URL" description:"websocket stream url, push updates are disabled when empty"`

	SessionToken string `long:"auth.token" env:"AUTH_TOKEN" description:"session token, the mirror is read-only when empty"`
	AuthSecret   string `long:"auth.secret" env:"AUTH_SECRET" default:"secret" description:"hmac key the session token is verified against"`

	PageSize int `long:"feed.page_size" env:"FEED_PAGE_SIZE" default:"20" description:"fetch page size"`

	LogLevel string `long:"log.level" env:"LOG_LEVEL" default:"info" description:"Log level" choice:"debug" choice:"info" choice:"warning" choice:"error"`
}{}

var errTerminated = errors.New("terminated")

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.ShortDescription = "Feedmirror"
	parser.LongDescription = "Feedmirror keeps a local, queryable mirror of the feed backend"

	_, err := parser.Parse()

	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			parser.WriteHelp(os.Stdout)
			os.Exit(0)
		}
		logrus.WithError(err).Fatal("error occurred while parsing flags")
	}

	lvl, _ := logrus.ParseLevel(opts.LogLevel) // err will always be nil
	logrus.SetLevel(lvl)

	src, err := auth.NewTokenSource(opts.SessionToken, []byte(opts.AuthSecret))
	if err != nil {
		logrus.WithError(err).Fatal("failed to verify session token")
	}
	if src.ViewerID() == "" {
		logrus.Warn("no session token, the mirror is read-only")
	}

	api := httpapi.New(opts.RemoteURL, opts.SessionToken, opts.RemoteTimeout)

	f := feed.New(api, src,
		feed.WithPageSize(opts.PageSize),
		feed.WithErrorHandler(func(err error) {
			logrus.WithError(err).Error("feed resolution failed")
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := f.SetFilter(ctx, entities.Filter{}); err != nil {
		logrus.WithError(err).Fatal("failed to load initial page")
	}

	var manager *realtime.Manager
	if opts.StreamURL != "" {
		stream, err := websocket.Dial(ctx, opts.StreamURL, opts.SessionToken)
		if err != nil {
			logrus.WithError(err).Fatal("failed to connect to stream")
		}

		manager = realtime.NewManager(stream)
		if err := f.AttachRealtime(ctx, manager, realtime.FeedChannel); err != nil {
			logrus.WithError(err).Fatal("failed to subscribe to feed channel")
		}
	} else {
		logrus.Warn("no stream url, push updates are disabled")
	}

	r := chi.NewMux()
	server.SetupRouter(f, r)

	srv := http.Server{
		Addr:    fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler: r,
	}

	gr, _ := errgroup.WithContext(ctx)
	gr.Go(srv.ListenAndServe)
	gr.Go(func() error {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

		select {
		case s := <-sigs:
			logrus.Infof("terminating by %s signal", s)
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		srv.Shutdown(shutdownCtx) // nolint:errcheck

		f.Close()
		if manager != nil {
			manager.Close()
		}

		cancel()

		return errTerminated
	})

	logrus.Info("service started")

	if err := gr.Wait(); err != nil && !errors.Is(err, errTerminated) && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("feedmirror unexpectedly closed")
	}
}
