package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/iafisher/exastash/internal/cliutil"
	"github.com/iafisher/exastash/internal/config"
	"github.com/iafisher/exastash/internal/db"
	"github.com/iafisher/exastash/internal/fofsserver"
	"github.com/iafisher/exastash/internal/gdriveclient"
	"github.com/iafisher/exastash/internal/googleauth"
	"github.com/iafisher/exastash/internal/metadata"
	"github.com/iafisher/exastash/internal/model"
	"github.com/iafisher/exastash/internal/policy"
	"github.com/iafisher/exastash/internal/storage"
	"github.com/iafisher/exastash/internal/storage/fofs"
	"github.com/iafisher/exastash/internal/storage/gdrive"
	"github.com/iafisher/exastash/internal/storage/inline"
	"github.com/iafisher/exastash/internal/tokenrefresh"
)

func usage() {
	fmt.Fprintf(os.Stderr, `exastash - a content-addressed archival file store.

Usage: exastash [options] <command> [args...]

Commands:
  init-db                          apply the schema to the configured database
  mkdir -p <stash-path>            create a directory (and its parents)
  add <local-path> <stash-path>    store a local file under a stash path
  cat <stash-path>                 write a stored file's body to stdout
  ls <stash-path>                  list a directory's entries
  token-refresh-loop               run the OAuth token refresh service
  fofs-serve                       serve this host's fofs piles over HTTP

Valid options:
`)
	flag.PrintDefaults()
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	configPath := flag.StringP("config-file", "f", config.DefaultConfigPath(),
		"A TOML-formatted configuration file used by exastash.")
	logLevel := flag.StringP("log", "l", "info",
		"Set logging level/verbosity. Can be one of: fatal, error, warn, info, debug, trace")
	parents := flag.BoolP("parents", "p", false, "With mkdir, create parent directories as needed.")
	executable := flag.BoolP("executable", "x", false, "With add, mark the stored file executable.")
	port := flag.IntP("port", "P", 0, "With fofs-serve, the port to listen on (overrides listen_addr's port).")
	help := flag.BoolP("help", "h", false, "Displays this help message.")
	flag.Usage = usage
	flag.Parse()

	if *help || len(flag.Args()) == 0 {
		flag.Usage()
		if *help {
			os.Exit(0)
		}
		os.Exit(1)
	}

	zerolog.SetGlobalLevel(cliutil.StringToLevel(*logLevel))

	cfg := config.Load(*configPath)
	ctx := context.Background()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to database")
	}
	defer pool.Close()

	metadataStore := metadata.New(pool)
	inlineReg := inline.New(pool)
	fofsReg := fofs.New(pool)
	gdriveReg := gdrive.New(pool)
	googleAuthReg := googleauth.New(pool)
	gdriveTokens := &gdrive.TokenSource{Auth: googleAuthReg}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "init-db":
		if err := db.Apply(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("could not apply schema")
		}
		log.Info().Msg("schema applied")

	case "mkdir":
		if len(args) != 1 {
			log.Fatal().Msg("mkdir requires exactly one stash path")
		}
		if !*parents {
			log.Fatal().Msg("mkdir currently only supports -p (create parents)")
		}
		components := splitStashPath(args[0])
		dirID, err := metadataStore.MakeDirs(ctx, metadata.RootDirID, components, []string{"windows_compatible"})
		if err != nil {
			log.Fatal().Err(err).Msg("mkdir failed")
		}
		fmt.Println(dirID)

	case "add":
		if len(args) != 2 {
			log.Fatal().Msg("add requires a local path and a stash path")
		}
		runAdd(ctx, metadataStore, defaultPolicy(), inlineReg, fofsReg, gdriveReg, gdriveTokens, cfg, args[0], args[1], *executable)

	case "cat":
		if len(args) != 1 {
			log.Fatal().Msg("cat requires exactly one stash path")
		}
		runCat(ctx, metadataStore, defaultPolicy(), inlineReg, fofsReg, gdriveReg, gdriveTokens, args[0])

	case "ls":
		if len(args) != 1 {
			log.Fatal().Msg("ls requires exactly one stash path")
		}
		runLs(ctx, metadataStore, args[0])

	case "token-refresh-loop":
		svc := &tokenrefresh.Service{Auth: googleAuthReg, Gdrive: gdriveReg}
		runUntilSignal(func(ctx context.Context) error { return svc.Run(ctx) })

	case "fofs-serve":
		addr := cfg.ListenAddr
		if *port != 0 {
			addr = fmt.Sprintf(":%d", *port)
		}
		srv := &fofsserver.Server{Fofs: fofsReg}
		log.Info().Str("addr", addr).Msg("fofs server listening")
		if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
			log.Fatal().Err(err).Msg("fofs server exited")
		}

	default:
		flag.Usage()
		fmt.Fprintf(os.Stderr, "\nunknown command %q\n", command)
		os.Exit(1)
	}
}

func splitStashPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func defaultPolicy() policy.Policy {
	return &policy.Default{InlineThreshold: 4096}
}

func runAdd(ctx context.Context, md *metadata.Store, pol policy.Policy, inlineReg *inline.Registry, fofsReg *fofs.Registry, gdriveReg *gdrive.Registry, gdriveTokens *gdrive.TokenSource, cfg *config.Config, localPath, stashPath string, executable bool) {
	components := splitStashPath(stashPath)
	if len(components) == 0 {
		log.Fatal().Msg("add requires a non-root stash path")
	}
	basename := components[len(components)-1]
	parentComponents := components[:len(components)-1]

	parentInode, err := md.ResolveInode(ctx, metadata.RootDirID, parentComponents)
	if err != nil {
		log.Fatal().Err(err).Msg("could not resolve parent directory")
	}
	parentDir, err := parentInode.ToDirID()
	if err != nil {
		log.Fatal().Err(err).Msg("parent is not a directory")
	}

	writer := &storage.Writer{
		Metadata:       md,
		Policy:         pol,
		Inline:         inlineReg,
		Fofs:           fofsReg,
		Gdrive:         gdriveReg,
		GdriveTokens:   gdriveTokens,
		GdriveClient:   gdriveclient.New(),
		GdrivePartSize: cfg.GdrivePartSize,
	}

	inode, err := writer.AddFile(ctx, model.DirID(parentDir), basename, localPath, executable, []string{"windows_compatible"})
	if err != nil {
		log.Fatal().Err(err).Msg("add failed")
	}
	fmt.Println(inode)
}

func runCat(ctx context.Context, md *metadata.Store, pol policy.Policy, inlineReg *inline.Registry, fofsReg *fofs.Registry, gdriveReg *gdrive.Registry, gdriveTokens *gdrive.TokenSource, stashPath string) {
	components := splitStashPath(stashPath)
	inode, err := md.ResolveInode(ctx, metadata.RootDirID, components)
	if err != nil {
		log.Fatal().Err(err).Msg("could not resolve path")
	}
	fileID, err := inode.ToFileID()
	if err != nil {
		log.Fatal().Err(err).Msg("path is not a file")
	}

	reader := &storage.Reader{
		Metadata:     md,
		Policy:       pol,
		Inline:       inlineReg,
		Fofs:         fofsReg,
		Gdrive:       gdriveReg,
		GdriveTokens: gdriveTokens,
		GdriveClient: gdriveclient.New(),
	}

	body, err := reader.Open(ctx, fileID)
	if err != nil {
		log.Fatal().Err(err).Msg("cat failed")
	}
	defer body.Close()

	if _, err := io.Copy(os.Stdout, body); err != nil {
		log.Fatal().Err(err).Msg("cat failed while streaming")
	}
}

func runLs(ctx context.Context, md *metadata.Store, stashPath string) {
	components := splitStashPath(stashPath)
	inode, err := md.ResolveInode(ctx, metadata.RootDirID, components)
	if err != nil {
		log.Fatal().Err(err).Msg("could not resolve path")
	}
	dirents, err := md.ListDir(ctx, inode)
	if err != nil {
		log.Fatal().Err(err).Msg("ls failed")
	}
	for _, d := range dirents {
		fmt.Println(d.Basename)
	}
}

// runUntilSignal runs fn with a context that's canceled on SIGINT/SIGTERM,
// the same shutdown style as onedriver's UnmountHandler signal setup.
func runUntilSignal(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	if err := fn(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("service exited with error")
	}
}
