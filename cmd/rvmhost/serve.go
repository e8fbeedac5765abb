package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/caffeineduck/rvmhost/hostcap"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP front end for the capability broker",
	Long: `Start an HTTP server exposing the capability boundary.

Endpoints:
  POST   /handles               Issue a handle: {"categories":["compute"]}
  POST   /handles/{id}/invoke   Invoke: {"op":"compute.multiply","args":{"a":2,"b":3}}
  DELETE /handles/{id}          Revoke the handle
  GET    /health                Health check

Invoke replies are Result-shaped: {"ok":...} or
{"err":{"kind":"...","message":"..."}}.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8000, "Port to listen on")
	serveCmd.Flags().Duration("op-timeout", 0, "Per-operation timeout (0 = none)")
	rootCmd.AddCommand(serveCmd)
}

type issueRequest struct {
	Categories []string `json:"categories"`
}

type issueResponse struct {
	Handle  string   `json:"handle"`
	Granted []string `json:"granted"`
}

type invokeRequest struct {
	Op   string         `json:"op"`
	Args map[string]any `json:"args"`
}

type invokeError struct {
	Kind    string `json:"kind"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

// httpStatus maps boundary failure kinds onto HTTP status codes. Every
// failure still carries its kind in the body; the status is a courtesy for
// plain HTTP clients.
func httpStatus(kind hostcap.Kind) int {
	switch kind {
	case hostcap.PermissionDenied:
		return http.StatusForbidden
	case hostcap.HandleExpired, hostcap.SessionClosed:
		return http.StatusGone
	case hostcap.NotFound:
		return http.StatusNotFound
	case hostcap.Unavailable:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func writeInvokeErr(w http.ResponseWriter, err *hostcap.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(err.Kind))
	json.NewEncoder(w).Encode(map[string]any{"err": invokeError{
		Kind:    err.Kind.String(),
		Op:      err.Op,
		Message: err.Msg,
	}})
}

// newServeMux builds the broker's HTTP surface. Split out from runServe so
// tests can drive it with httptest.
func newServeMux(broker *hostcap.Broker, opTimeout time.Duration, log zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/handles", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req issueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		requested, err := hostcap.ParseCategories(req.Categories)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		h, herr := broker.Issue(requested)
		if herr != nil {
			writeInvokeErr(w, herr)
			return
		}

		granted, _ := broker.Grants(h)
		log.Info().Str("handle", h.String()).Str("granted", granted.String()).Msg("handle issued")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(issueResponse{
			Handle:  h.String(),
			Granted: granted.Names(),
		})
	})

	mux.HandleFunc("/handles/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/handles/")
		parts := strings.SplitN(path, "/", 2)

		h, err := hostcap.ParseHandle(parts[0])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if r.Method == http.MethodDelete && len(parts) == 1 {
			broker.Revoke(h)
			log.Info().Str("handle", h.String()).Msg("handle revoked")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "invoke" {
			var req invokeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if req.Op == "" {
				http.Error(w, "op required", http.StatusBadRequest)
				return
			}

			ctx := r.Context()
			if opTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opTimeout)
				defer cancel()
			}

			v, herr := broker.Invoke(ctx, h, req.Op, req.Args)
			if herr != nil {
				log.Debug().Str("op", req.Op).Str("kind", herr.Kind.String()).Msg("invoke failed")
				writeInvokeErr(w, herr)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"ok": v})
			return
		}

		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

func runServe(cmd *cobra.Command, args []string) {
	port, _ := cmd.Flags().GetInt("port")
	opTimeout, _ := cmd.Flags().GetDuration("op-timeout")

	log := newLogger(cmd)
	broker, err := buildBroker(cmd, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer broker.Close()

	addr := fmt.Sprintf(":%d", port)
	log.Info().Str("addr", addr).Msg("rvmhost listening")
	if err := http.ListenAndServe(addr, newServeMux(broker, opTimeout, log)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
