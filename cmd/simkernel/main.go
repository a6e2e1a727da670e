// Command simkernel boots one instance of the simulated kernel and
// either runs a scripted demo of a handful of end-to-end scenarios,
// or serves Prometheus metrics for the running instance — a real CLI
// and a real metrics endpoint instead of stub commands.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"microkern/internal/kernel"
)

var (
	cpus       int
	quantum    time.Duration
	cpuProfile string
)

func main() {
	root := &cobra.Command{
		Use:   "simkernel",
		Short: "Run the simulated capability-oriented microkernel core",
	}
	root.PersistentFlags().IntVar(&cpus, "cpus", 2, "number of simulated CPUs")
	root.PersistentFlags().DurationVar(&quantum, "quantum", 10*time.Millisecond, "scheduler quantum")
	root.PersistentFlags().StringVar(&cpuProfile, "cpuprofile", "", "write a pprof CPU profile to this path")

	root.AddCommand(bootCmd(), serveMetricsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func startProfile() func() {
	if cpuProfile == "" {
		return func() {}
	}
	f, err := os.Create(cpuProfile)
	if err != nil {
		logrus.WithError(err).Warn("could not create cpu profile")
		return func() {}
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		logrus.WithError(err).Warn("could not start cpu profile")
		f.Close()
		return func() {}
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}
}

func bootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "boot",
		Short: "Boot the kernel, run a scripted demo workload, and exit",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			stopProfile := startProfile()
			defer stopProfile()
			defer func() {
				if r := recover(); r != nil {
					dumpCrash(r)
					err = fmt.Errorf("kernel panic: %v", r)
				}
			}()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := logrus.New()
			k, err := kernel.Boot(ctx, kernel.Config{CPUs: cpus, Quantum: quantum, Log: log})
			if err != nil {
				return err
			}
			defer k.Shutdown()

			log.WithField("boot_id", k.BootID).Info("running demo workload")
			runDemo(k)
			return nil
		},
	}
}

func serveMetricsCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Boot the kernel and serve Prometheus metrics until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log := logrus.New()
			k, err := kernel.Boot(ctx, kernel.Config{CPUs: cpus, Quantum: quantum, Log: log})
			if err != nil {
				return err
			}
			defer k.Shutdown()

			reg := prometheus.NewRegistry()
			cpuGauge := promauto.With(reg).NewGauge(prometheus.GaugeOpts{
				Name: "microkern_cpus",
				Help: "Number of simulated CPUs under scheduler management.",
			})
			cpuGauge.Set(float64(k.Sched.CPUCount()))

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: addr, Handler: mux}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			log.WithField("addr", addr).Info("serving metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "address to serve /metrics on")
	return cmd
}
