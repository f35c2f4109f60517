// Package fofsserver serves a local host's fofs piles over HTTP, so a
// remote exastash host can read a file stored in a pile it doesn't have
// mounted locally. It mirrors the route table of the original web server:
// "/", "/fofs/:pile_id/:cell_id/:file_id", a trailing-slash variant that
// always 404s, and a catch-all fallback, all wrapped in a middleware that
// stamps every response with a Server header.
package fofsserver

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/iafisher/exastash/internal/metadata"
	"github.com/iafisher/exastash/internal/storage/fofs"
)

const version = "0.1.0"

var serverHeader = "es web/" + version

// Server answers fofs read requests for piles hosted on this machine.
type Server struct {
	Fofs *fofs.Registry

	// pilePaths caches pile_id -> path lookups, the same as the original
	// server's in-memory SharedState map; a sync.Map since requests are
	// served concurrently.
	pilePaths sync.Map
}

// Handler returns the http.Handler for the fofs server's full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.routeRoot)
	return withCommonHeaders(mux)
}

func withCommonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", serverHeader)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) routeRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		s.handleRoot(w, r)
		return
	}

	const prefix = "/fofs/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		notFound(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, prefix)
	// A trailing slash always 404s, matching the original's explicit
	// "/fofs/:pile_id/:cell_id/:file_id/" route.
	if strings.HasSuffix(rest, "/") {
		notFound(w)
		return
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 {
		notFound(w)
		return
	}

	pileID, err := parseNaturalNumber[int32](parts[0])
	if err != nil {
		badRequest(w, err)
		return
	}
	cellID, err := parseNaturalNumber[int32](parts[1])
	if err != nil {
		badRequest(w, err)
		return
	}
	fileID, err := parseNaturalNumber[int64](parts[2])
	if err != nil {
		badRequest(w, err)
		return
	}

	s.handleFofsGet(w, r, pileID, cellID, fileID)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		notFound(w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("es web on " + metadata.Hostname()))
}

// handleFofsGet trusts the client's pile/cell/file addressing and serves
// whatever is on disk at that path, even if no storage_fofs row mentions
// it, matching the original server's documented trust model.
func (s *Server) handleFofsGet(w http.ResponseWriter, r *http.Request, pileID, cellID int32, fileID int64) {
	if r.Method != http.MethodGet {
		notFound(w)
		return
	}

	var pilePath string
	if cached, ok := s.pilePaths.Load(pileID); ok {
		pilePath = cached.(string)
	} else {
		log.Info().Int32("pile_id", pileID).Msg("looking up pile path")
		pile, err := s.Fofs.PileForCell(r.Context(), cellID)
		if err != nil {
			notFound(w)
			return
		}
		if pile.ID != pileID {
			notFound(w)
			return
		}
		if pile.Hostname != metadata.Hostname() {
			notFound(w)
			return
		}
		pilePath = pile.Path
		s.pilePaths.Store(pileID, pilePath)
	}

	path := fofs.CellFilePath(pilePath, cellID, fileID)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			notFound(w)
			return
		}
		internalError(w, err)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		internalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// parseNaturalNumber parses s strictly as a natural number, forbidding a
// leading '0' or '+' the way the original server's NatNum extractor does
// (so "007" and "+5" are rejected even though strconv would accept them).
func parseNaturalNumber[T int32 | int64](s string) (T, error) {
	if s == "" || strings.HasPrefix(s, "0") || strings.HasPrefix(s, "+") {
		return 0, errNotNatural
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, errNotNatural
	}
	return T(n), nil
}

var errNotNatural = &naturalNumberError{}

type naturalNumberError struct{}

func (*naturalNumberError) Error() string {
	return "number could not be parsed strictly as a natural number"
}

func notFound(w http.ResponseWriter) {
	http.Error(w, "route not found", http.StatusNotFound)
}

func badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func internalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("fofsserver: internal error")
	http.Error(w, "an internal server error occurred", http.StatusInternalServerError)
}
