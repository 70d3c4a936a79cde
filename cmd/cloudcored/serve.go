package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghodss/yaml"
	"github.com/gorilla/mux"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cloudcore/cloudcore/cloudfactory"
	"github.com/cloudcore/cloudcore/cloudfactory/store/etcdstore"
	"github.com/cloudcore/cloudcore/cloudfactory/store/jsonstore"
	"github.com/cloudcore/cloudcore/cloudfactory/store/sqlstore"
	"github.com/cloudcore/cloudcore/eventloop"
	"github.com/cloudcore/cloudcore/httpapi"
	"github.com/cloudcore/cloudcore/httpapi/nethttp"
	"github.com/cloudcore/cloudcore/pkg/log"
	"github.com/cloudcore/cloudcore/provider/mega"
	"github.com/cloudcore/cloudcore/workerpool"

	clientv3 "go.etcd.io/etcd/client/v3"
)

type serveOptions struct {
	config string
}

func commandServe() *cobra.Command {
	options := serveOptions{}

	cmd := &cobra.Command{
		Use:     "serve [flags] config.yaml",
		Short:   "Run the cloudcored daemon",
		Example: "cloudcored serve config.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			options.config = args[0]
			return runServe(options)
		},
	}
	return cmd
}

func runServe(options serveOptions) error {
	configData, err := os.ReadFile(options.config)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %v", options.config, err)
	}

	var c Config
	if err := yaml.Unmarshal(configData, &c); err != nil {
		return fmt.Errorf("error parsing config file %s: %v", options.config, err)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	logrusLogger, err := newLogrusLogger(c.Logger)
	if err != nil {
		return err
	}
	logger := log.NewLogrusLogger(logrusLogger)
	logger.Infof("starting cloudcored, accounts driver: %s", c.Accounts.Driver)

	store, err := openStore(context.Background(), c.Accounts)
	if err != nil {
		return err
	}

	httpFactory, err := nethttp.New(nethttp.Config{})
	if err != nil {
		return fmt.Errorf("building http client: %v", err)
	}
	loop := eventloop.New(256)
	pool := workerpool.New(8, 256)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go loop.Run(runCtx)
	defer pool.Close()

	providers := map[string]cloudfactory.ProviderConfig{}
	for name, p := range c.Providers {
		providers[name] = cloudfactory.ProviderConfig{ClientID: p.ClientID, ClientSecret: p.ClientSecret}
	}

	factory := cloudfactory.New(cloudfactory.InitData{
		RedirectURI: "http://" + c.Web.HTTP + "/oauth/callback",
		HTTP:        httpFactory,
		Loop:        loop,
		Pool:        pool,
		Logger:      logger,
		Store:       store,
		Providers:   providers,
	})

	if err := factory.Load(context.Background()); err != nil {
		return fmt.Errorf("loading persisted accounts: %v", err)
	}

	srv := &http.Server{Addr: c.Web.HTTP, Handler: newControlRouter(factory, httpFactory, c.Web, logger)}
	defer srv.Close()

	var gr run.Group
	{
		listener, err := net.Listen("tcp", c.Web.HTTP)
		if err != nil {
			return fmt.Errorf("listening (http) on %s: %v", c.Web.HTTP, err)
		}
		gr.Add(func() error {
			logger.Infof("listening (http) on %s", c.Web.HTTP)
			return srv.Serve(listener)
		}, func(err error) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Errorf("graceful shutdown (http): %v", err)
			}
			if err := factory.Dump(context.Background()); err != nil {
				logger.Errorf("dumping accounts on shutdown: %v", err)
			}
		})
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	gr.Add(func() error {
		<-sigCtx.Done()
		return sigCtx.Err()
	}, func(error) {
		stop()
	})

	if err := gr.Run(); err != nil {
		logger.Infof("shutting down: %v", err)
	}
	return nil
}

func newLogrusLogger(cfg Logger) (*logrus.Logger, error) {
	logger := logrus.New()
	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format not one of (json, text): %s", cfg.Format)
	}
	if cfg.Level != "" {
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %v", cfg.Level, err)
		}
		logger.SetLevel(level)
	}
	return logger, nil
}

func openStore(ctx context.Context, cfg Accounts) (cloudfactory.Store, error) {
	switch cfg.Driver {
	case "", "json":
		return jsonstore.File{Path: cfg.JSON.Path}, nil
	case "sql":
		return sqlstore.Open(ctx, sqlstore.Flavor(cfg.SQL.Flavor), cfg.SQL.Driver, cfg.SQL.DSN)
	case "etcd":
		client, err := clientv3.New(clientv3.Config{Endpoints: cfg.Etcd.Endpoints, DialTimeout: 5 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("connecting to etcd: %v", err)
		}
		return etcdstore.New(client), nil
	default:
		return nil, fmt.Errorf("unknown accounts driver %q", cfg.Driver)
	}
}

// newControlRouter builds the daemon's HTTP control API: starting an
// account's authorization flow and completing the loopback callback, the
// operator-facing surface in front of cloudfactory.Factory.
func newControlRouter(factory *cloudfactory.Factory, httpFactory httpapi.Factory, web Web, logger log.Logger) *mux.Router {
	router := mux.NewRouter()

	requireToken := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !web.CheckAPIToken(r.Header.Get("Authorization")) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	router.HandleFunc("/providers", requireToken(func(w http.ResponseWriter, r *http.Request) {
		for _, name := range cloudfactory.AvailableProviders() {
			fmt.Fprintln(w, name)
		}
	})).Methods(http.MethodGet)

	router.HandleFunc("/oauth/authorize/{provider}", requireToken(func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["provider"]
		url, err := factory.AuthorizationURL(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	})).Methods(http.MethodGet)

	// Mega has no OAuth step (see provider/mega): an account comes online
	// by logging in with email/password directly instead of a redirect.
	router.HandleFunc("/mega/login", requireToken(func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		password := r.URL.Query().Get("password")
		if email == "" || password == "" {
			http.Error(w, "missing email or password", http.StatusBadRequest)
			return
		}
		session, err := mega.NewSession(r.Context(), httpFactory, email, password)
		if err != nil {
			logger.Errorf("mega login for %s: %v", email, err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		factory.AddMegaSession("mega", session)
		fmt.Fprintln(w, "authorized")
	})).Methods(http.MethodPost)

	router.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		provider := r.URL.Query().Get("provider")
		code := r.URL.Query().Get("code")
		if provider == "" || code == "" {
			http.Error(w, "missing provider or code", http.StatusBadRequest)
			return
		}
		if _, err := factory.CompleteAuth(r.Context(), provider, code); err != nil {
			logger.Errorf("completing auth for %s: %v", provider, err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		fmt.Fprintln(w, "authorized")
	}).Methods(http.MethodGet)

	return router
}
