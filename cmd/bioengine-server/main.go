// Command bioengine-server runs the HTTP engine as a standalone process,
// dispatching every request to a small default handler. It exists to
// exercise the engine end-to-end; embedding callers construct
// endpoint.Endpoint directly with their own processor.Handler.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/andycostintoma/bioengine/internal/config"
	"github.com/andycostintoma/bioengine/internal/endpoint"
	"github.com/andycostintoma/bioengine/internal/httpx"
	"github.com/andycostintoma/bioengine/internal/log"
	"github.com/andycostintoma/bioengine/internal/processor"
	"github.com/andycostintoma/bioengine/internal/sigs"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bioengine-server",
	Short: "Run the bioengine HTTP/1.1 server",
	Run:   runServe,
	Example: "# bioengine-server --config bioengine.yaml",
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Configuration file path (optional)")
}

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(log.Infof)); err != nil {
		log.Warnf("failed to set GOMAXPROCS: %v", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	eng := config.Defaults()
	if configPath != "" {
		cfg, err := config.LoadPath(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		eng, err = config.LoadEngine(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to unpack engine config: %v\n", err)
			os.Exit(1)
		}
	}
	log.SetOptions(log.Options{Level: eng.Logger.Level})

	limits := processor.Limits{
		ParseBufferSize:         eng.MaxHeaderBytes,
		RejectIllegalHeaderName: eng.RejectIllegalHeaderName,
		SocketBufferBytes:       eng.SocketBufferBytes,
		MaxHeaderCount:          eng.MaxHeaderCount,
		ConnectionTimeout:       eng.ConnectionTimeout,
		KeepAliveTimeout:        eng.KeepAliveTimeout,
		MaxKeepAliveRequests:    eng.MaxKeepAliveCount,
	}

	ep := endpoint.New(endpoint.Config{
		Address:           eng.Address,
		AcceptorThreads:   eng.AcceptorThreads,
		MaxConnections:    eng.MaxConnections,
		MaxWorkerThreads:  eng.MaxWorkerThreads,
		ConnectionTimeout: eng.ConnectionTimeout,
	}, processor.HandlerFunc(defaultHandler), limits)

	if err := ep.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start endpoint: %v\n", err)
		os.Exit(1)
	}
	log.Infof("bioengine-server started on %s", eng.Address)

	for {
		select {
		case <-sigs.Terminate():
			log.Infof("shutting down")
			if err := ep.Stop(); err != nil {
				log.Errorf("error during shutdown: %v", err)
			}
			return

		case <-sigs.Reload():
			if configPath != "" {
				if cfg, err := config.LoadPath(configPath); err != nil {
					log.Errorf("reload: %v", err)
				} else if reloaded, err := config.LoadEngine(cfg); err != nil {
					log.Errorf("reload: %v", err)
				} else {
					log.SetLevel(reloaded.Logger.Level)
				}
			}
			log.Infof("reload signal received (log level only; listener configuration is immutable for its lifetime)")
		}
	}
}

// defaultHandler answers every request with a minimal plaintext body,
// useful for smoke-testing the engine without wiring an application router.
func defaultHandler(w *httpx.OutputBuffer, body io.Reader, req *httpx.Request) {
	io.Copy(io.Discard, body)

	resp := w.Response()
	resp.StatusCode = 200
	resp.StatusMessage = "OK"
	resp.ContentType = "text/plain"
	resp.CharacterEncoding = "utf-8"

	msg := fmt.Sprintf("%s %s %s\n", req.MethodString(), req.RequestURIString(), time.Now().UTC().Format(time.RFC3339))
	w.Write([]byte(msg))
}
