package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/unkn0wn-root/formcache"
	"github.com/unkn0wn-root/formcache/internal/config"
	"github.com/unkn0wn-root/formcache/internal/httpapi"
	"github.com/unkn0wn-root/formcache/menu"
)

var configFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path to a YAML config file",
	Sources: cli.NewValueSourceChain(
		cli.EnvVar("FORMCACHE_CONFIG"),
	),
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "formcache",
		Usage: "cached PERSCOM submission-form directory",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "forms",
				Usage:  "print the form directory and when it refreshes",
				Action: formsAction,
			},
			{
				Name:   "refresh",
				Usage:  "drop the cached directory so the next read refetches",
				Action: refreshAction,
			},
			{
				Name:  "serve",
				Usage: "serve the directory and admin menu over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address; overrides server.addr",
					},
				},
				Action: serveAction,
			},
		},
	}
}

func setup(cmd *cli.Command) (*runtime, error) {
	cfg, err := config.Load(cmd.String(configFlag.Name))
	if err != nil {
		return nil, err
	}
	return build(cfg)
}

func formsAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	forms := rt.dir.Forms(ctx)
	tw := tabwriter.NewWriter(cmd.Root().Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for id, name := range forms.All() {
		fmt.Fprintf(tw, "%s\t%s\n", id, name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if at, ok := rt.dir.Expiry(ctx); ok && !at.IsZero() {
		fmt.Fprintf(cmd.Root().Writer, "\n%d forms, refreshes %s\n", forms.Len(), humanize.Time(at))
	}
	return nil
}

func refreshAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	if err := rt.dir.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	fmt.Fprintln(cmd.Root().Writer, "form directory invalidated")
	return nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	addr := rt.cfg.Server.Addr
	if a := cmd.String("addr"); a != "" {
		addr = a
	}
	if rt.cfg.Server.Mode != "" {
		gin.SetMode(rt.cfg.Server.Mode)
	}

	versions := menu.StaticVersions{}
	if rt.cfg.Server.PremiumBuild {
		versions[menu.PluginName] = menu.PremiumVersion
	}
	builder := menu.NewBuilder(menu.DefaultPaths(rt.cfg.Server.AdminPrefix), rt.dir, versions)
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(rt.dir, builder, rt.log)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		rt.log.Info("listening", formcache.Fields{"addr": addr})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt.log.Info("shutting down", nil)
	return srv.Shutdown(shutdownCtx)
}
