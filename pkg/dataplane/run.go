package dataplane

import (
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/lab5e/flowfunk/pkg/affinity/metrics"
	"github.com/lab5e/flowfunk/pkg/management"
	"github.com/lab5e/flowfunk/pkg/toolbox"
	gotoolbox "github.com/lab5e/gotoolbox/toolbox"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Run is a ready-to run (just call it from main()) implementation of the
// flow affinity daemon.
func Run() {
	var config Parameters
	k, err := kong.New(&config, kong.Name("flowd"),
		kong.Description("Flow affinity dataplane"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: false,
		}))
	if err != nil {
		panic(err)
	}
	if _, err := k.Parse(os.Args[1:]); err != nil {
		k.FatalIfErrorf(err)
		return
	}

	gotoolbox.InitLogs("flowd", config.Log)
	if config.InstanceID == "" {
		config.InstanceID = toolbox.RandomID()
	}
	logrus.WithField("instance", config.InstanceID).Info("Starting flowd")

	sink := metrics.NewSinkFromString(config.Metrics, config.InstanceID)
	dp, err := New(config, sink)
	if err != nil {
		logrus.WithError(err).Error("Unable to create dataplane")
		os.Exit(2)
	}

	mgmt := management.NewServer(dp.Context(), dp.Table(), dp.Controller(), sink)
	if err := mgmt.Start(config.Management); err != nil {
		logrus.WithError(err).Error("Unable to start management service")
		os.Exit(2)
	}
	defer mgmt.Stop()

	if config.ZeroConf {
		zr := toolbox.NewZeroconfRegistry(config.Name)
		_, port, err := net.SplitHostPort(mgmt.Endpoint())
		if err != nil {
			logrus.WithError(err).WithField("hostport", mgmt.Endpoint()).Error("Host:port string is invalid")
			os.Exit(2)
		}
		portNum, err := strconv.Atoi(port)
		if err != nil {
			logrus.WithError(err).WithField("hostport", mgmt.Endpoint()).Error("Host:port string is invalid")
			os.Exit(2)
		}
		if err := zr.Register(management.ZeroconfKind, config.InstanceID, portNum); err != nil {
			logrus.WithError(err).Error("Unable to register in ZeroConf")
			os.Exit(2)
		}
		defer zr.Shutdown()
	}

	if config.Metrics == metrics.PrometheusSink && config.MetricsEndpoint != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(config.MetricsEndpoint, mux); err != nil {
				logrus.WithError(err).WithField("endpoint", config.MetricsEndpoint).Error("Metrics endpoint failed")
			}
		}()
	}

	if err := dp.Start(); err != nil {
		logrus.WithError(err).Error("Unable to start dataplane")
		os.Exit(2)
	}
	defer dp.Stop()

	logrus.WithFields(logrus.Fields{
		"management": mgmt.Endpoint(),
		"metrics":    config.MetricsEndpoint,
	}).Info("flowd started")
	gotoolbox.WaitForSignal()
}
