// Copyright © 2018 Niko Carpenter <nikoacarpenter@gmail.com>
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/n0ot/relayhub/pkg/server"
	"github.com/n0ot/relayhub/pkg/server/methods"
)

const shutdownTimeout = 10 * time.Second

var disableTLS bool

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the relayhubd server",
	RunE:  runServer,
}

func init() {
	RootCmd.AddCommand(startCmd)

	startCmd.Flags().StringP("bind", "b", "127.0.0.1:6837", "Bind the server to host:port. Leave host empty to bind to all interfaces.")
	viper.BindPFlag("server.bind", startCmd.Flags().Lookup("bind"))
	startCmd.Flags().IntP("time-between-pings", "t", 30, "How often pings should be sent in seconds (0 disables)")
	viper.BindPFlag("server.timeBetweenPings", startCmd.Flags().Lookup("time-between-pings"))
	startCmd.Flags().IntP("pings-until-timeout", "p", 2, "Number of pings that can go unanswered before inactive clients are dropped (0 disables timeout)")
	viper.BindPFlag("server.pingsUntilTimeout", startCmd.Flags().Lookup("pings-until-timeout"))
	startCmd.Flags().StringSliceP("allowed-origins", "o", nil, "Origins allowed to open websockets (\"*\" allows all)")
	viper.BindPFlag("server.allowedOrigins", startCmd.Flags().Lookup("allowed-origins"))
	startCmd.Flags().StringP("log-level", "l", "info", "Log level (trace, debug, info, warn, error)")
	viper.BindPFlag("log.level", startCmd.Flags().Lookup("log-level"))
	startCmd.Flags().BoolVarP(&disableTLS, "disable-tls", "d", false, "Overrides config option to enable TLS")

	viper.SetDefault("server.writeWait", 10)
	viper.SetDefault("server.maxMessageSize", 64*1024)
	viper.SetDefault("server.statsPassword", "")
	viper.SetDefault("tls.useTls", true)
}

// newLogger builds the server's logger from the log.level setting.
func newLogger(level string) (*logrus.Logger, error) {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = new(logrus.TextFormatter)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "Log level")
	}
	log.Level = lvl
	return log, nil
}

// newServer builds a server from configuration, with the server methods registered.
func newServer(v *viper.Viper, log *logrus.Logger) (*server.Server, error) {
	srv := &server.Server{
		TimeBetweenPings:  v.GetDuration("server.timeBetweenPings") * time.Second,
		PingsUntilTimeout: v.GetInt("server.pingsUntilTimeout"),
		WriteWait:         v.GetDuration("server.writeWait") * time.Second,
		MaxMessageSize:    v.GetInt64("server.maxMessageSize"),
		AllowedOrigins:    v.GetStringSlice("server.allowedOrigins"),
		StatsPassword:     v.GetString("server.statsPassword"),
		Log:               log,
	}

	if err := methods.Register(srv.Router(), srv.Dispatcher()); err != nil {
		return nil, err
	}
	return srv, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	log, err := newLogger(viper.GetString("log.level"))
	if err != nil {
		return err
	}

	srv, err := newServer(viper.GetViper(), log)
	if err != nil {
		return err
	}

	bindAddr := viper.GetString("server.bind")
	certFile := os.ExpandEnv(viper.GetString("tls.certFile"))
	keyFile := os.ExpandEnv(viper.GetString("tls.keyFile"))
	useTLS := viper.GetBool("tls.useTls")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	served := make(chan error, 1)
	go func() {
		if useTLS && !disableTLS {
			served <- srv.ListenAndServeTLS(bindAddr, certFile, keyFile)
		} else {
			served <- srv.ListenAndServe(bindAddr)
		}
	}()

	log.Info("Starting relayhubd")
	select {
	case err := <-served:
		return err
	case sig := <-stop:
		log.WithField("signal", sig).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "Shutdown")
	}
	if err := <-served; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
