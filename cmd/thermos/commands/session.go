package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/spf13/cobra"

	"github.com/thermos-iot/thermos-console/pkg/analytics"
	"github.com/thermos-iot/thermos-console/pkg/client"
	"github.com/thermos-iot/thermos-console/pkg/config"
	"github.com/thermos-iot/thermos-console/pkg/display"
	"github.com/thermos-iot/thermos-console/pkg/operations"
	"github.com/thermos-iot/thermos-console/pkg/pgsource"
	"github.com/thermos-iot/thermos-console/pkg/runtime"
	"github.com/thermos-iot/thermos-console/pkg/schema"
	"github.com/thermos-iot/thermos-console/pkg/tabledata"
)

// backend is what the commands need from either the REST client or the
// direct PostgreSQL service.
type backend interface {
	operations.Service
	GetTableColumns(ctx context.Context, table string) ([]schema.Column, error)
	GetRows(ctx context.Context, table string, params url.Values) ([]schema.Row, error)
}

// session holds what a command invocation builds from config and flags.
// Connections are opened on first use.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	lang   display.Lang

	api     *client.Client
	db      *runtime.DB
	influx  influxdb2.Client
	service backend
	ops     *operations.Operations
	manager *tabledata.Manager
}

var sess *session

func openSession(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if apiURL != "" {
		cfg.API.URL = apiURL
	}
	if apiToken != "" {
		cfg.API.Token = apiToken
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if language != "" {
		cfg.Language = language
	}
	if userID > 0 {
		cfg.UserID = userID
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sess = &session{
		cfg:    cfg,
		logger: cfg.Log.NewLogger(cmd.ErrOrStderr()),
		lang:   display.ParseLang(cfg.Language),
	}
	return nil
}

func closeSession() {
	if sess == nil {
		return
	}
	if sess.influx != nil {
		sess.influx.Close()
	}
	sess.db.Close()
	sess = nil
}

func (s *session) client() (*client.Client, error) {
	if s.api != nil {
		return s.api, nil
	}
	if s.cfg.API.URL == "" {
		return nil, errors.New("no backend URL configured, set --api or api.url")
	}

	rps := s.cfg.API.RateLimit
	s.api = client.New(s.cfg.API.URL,
		client.WithPrefix(s.cfg.API.Prefix),
		client.WithToken(s.cfg.API.Token),
		client.WithRateLimit(rps, max(1, int(rps))),
		client.WithHTTPClient(&http.Client{Timeout: s.cfg.API.Timeout}),
		client.WithLogger(s.logger),
	)
	return s.api, nil
}

func (s *session) backend(ctx context.Context) (backend, error) {
	if s.service != nil {
		return s.service, nil
	}

	if s.cfg.Database.URL != "" {
		db, err := runtime.Connect(ctx, &runtime.Config{
			URL:      s.cfg.Database.URL,
			Schema:   s.cfg.Database.Schema,
			MaxConns: s.cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		s.db = db
		s.service = pgsource.New(db, pgsource.WithLogger(s.logger))
		s.logger.Debug("using database backend", slog.String("schema", db.Schema()))
		return s.service, nil
	}

	api, err := s.client()
	if err != nil {
		return nil, err
	}
	s.service = api
	s.logger.Debug("using REST backend", slog.String("url", s.cfg.API.URL))
	return s.service, nil
}

func (s *session) operations(ctx context.Context) (*operations.Operations, error) {
	if s.ops != nil {
		return s.ops, nil
	}
	b, err := s.backend(ctx)
	if err != nil {
		return nil, err
	}
	s.ops = operations.New(b,
		operations.WithLanguage(s.lang),
		operations.WithUserID(s.cfg.UserID),
		operations.WithLogger(s.logger),
	)
	return s.ops, nil
}

func (s *session) tables(ctx context.Context) (*tabledata.Manager, error) {
	if s.manager != nil {
		return s.manager, nil
	}
	b, err := s.backend(ctx)
	if err != nil {
		return nil, err
	}
	s.manager = tabledata.New(b,
		tabledata.WithResolver(display.NewResolver(display.WithLanguage(s.lang))),
		tabledata.WithLogger(s.logger),
	)
	return s.manager, nil
}

// loadedTables returns a manager whose reference data is loaded. Reference
// tables that fail to load are logged and rendered as raw ids.
func (s *session) loadedTables(ctx context.Context) (*tabledata.Manager, error) {
	m, err := s.tables(ctx)
	if err != nil {
		return nil, err
	}
	if m.References().Len() > 0 {
		return m, nil
	}
	if err := m.LoadRelatedTablesData(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		s.logger.Warn("some reference tables failed to load", slog.String("error", err.Error()))
	}
	return m, nil
}

func (s *session) measurements() (analytics.Source, error) {
	if s.cfg.Influx.URL != "" {
		if s.influx == nil {
			s.influx = influxdb2.NewClient(s.cfg.Influx.URL, s.cfg.Influx.Token)
		}
		return analytics.NewInfluxSource(s.influx, s.cfg.Influx.Org, s.cfg.Influx.Bucket), nil
	}

	api, err := s.client()
	if err != nil {
		return nil, fmt.Errorf("measurements need influx.url or a backend URL: %w", err)
	}
	return analytics.NewRESTSource(api), nil
}
