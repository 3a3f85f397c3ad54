/*
Gzlserver starts a parse server and begins listening for new connections.

Usage:

	gzlserver [flags]
	gzlserver [flags] -l [[ADDRESS]:PORT]

Once started, the server will listen for HTTP requests and respond to them
using REST protocol. By default, it will listen on localhost:8080. This can
be changed with the --listen/-l flag (or the GZLSERVER_LISTEN_ADDRESS
environment variable). The flag argument must be either a full address with
port, such as "192.168.0.2:6001", or just a colon-prefixed port, such as
":6001".

If a JWT token secret is not given, one will be automatically generated and
seeded from the system CSPRNG. As a consequence, in this mode of operation
all tokens are rendered invalid as soon as the server shuts down. This is
suitable for testing, but must be given via either CLI flags, environment
variable, or a config file if running in production.

The flags are:

	-c, --config PATH
		Load settings from the TOML config file at PATH. Flags and
		environment variables given in addition to this override the
		settings it contains.

	-l, --listen LISTEN_ADDRESS
		Listen on the given address. Must be in BIND_ADDRESS:PORT or :PORT
		format. If not given, will default to the value of environment
		variable GZLSERVER_LISTEN_ADDRESS, and if that is not given, will
		default to localhost:8080.

	-s, --secret TOKEN_SECRET
		Use the provided secret for signing JWT tokens. If there are less
		than 32 bytes in the secret, it will be repeated until it is. The
		maximum size is 64 bytes. If not given, will default to the value of
		environment variable GZLSERVER_TOKEN_SECRET. If no secret is
		specified, a random secret will be automatically generated.

	--db DRIVER[:PARAMS]
		Use the given DB connection string. DRIVER must be one of the
		following: inmem, sqlite. inmem has no further params. sqlite needs
		the path to the data directory, such as sqlite:path/to/db_dir. If
		not given, will default to the value of environment variable
		GZLSERVER_DATABASE. If no DB driver is specified, an in-memory
		database is automatically selected.

	--bootstrap-user USERNAME:PASSWORD
		On startup, create an initial user with the given username and
		password if no user with that username already exists. There is no
		other way to create a user once the server is running, since this
		tool exposes no user-management API.
*/
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/mail"
	"os"
	"strconv"
	"strings"

	"github.com/dekarrin/gazelle/server"
	"github.com/dekarrin/gazelle/server/api"
	"github.com/dekarrin/gazelle/server/dao"
	"github.com/dekarrin/gazelle/server/serr"
	"github.com/dekarrin/gazelle/server/tunas"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

const (
	EnvListen = "GZLSERVER_LISTEN_ADDRESS"
	EnvSecret = "GZLSERVER_TOKEN_SECRET"
	EnvDB     = "GZLSERVER_DATABASE"
)

var (
	flagConfig    = pflag.StringP("config", "c", "", "Load settings from the given TOML config file.")
	flagListen    = pflag.StringP("listen", "l", "", "Listen on the given address.")
	flagSecret    = pflag.StringP("secret", "s", "", "Use the given secret for token generation.")
	flagDB        = pflag.String("db", "", "Use the given DB connection string.")
	flagBootstrap = pflag.String("bootstrap-user", "", "Create an initial user as USERNAME:PASSWORD if it does not already exist.")
)

func main() {
	pflag.Parse()

	args := pflag.Args()
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, "Too many arguments\nDo -h for help.\n")
		os.Exit(1)
	}

	var cfg server.Config
	if *flagConfig != "" {
		var err error
		cfg, err = server.LoadConfigFile(*flagConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not load config file: %s\n", err)
			os.Exit(1)
		}
	}

	addr, port, err := resolveListenAddr()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\nDo -h for help.\n", err)
		os.Exit(1)
	}

	if dbConnStr := envOrFlag(EnvDB, "db", *flagDB); dbConnStr != "" {
		db, err := server.ParseDBConnString(dbConnStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Not a valid DB string: %s\nDo -h for help.\n", err)
			os.Exit(1)
		}
		cfg.DB = db
	}

	if secretStr := envOrFlag(EnvSecret, "secret", *flagSecret); secretStr != "" {
		cfg.TokenSecret = normalizeSecret([]byte(secretStr))
	} else if cfg.TokenSecret == nil {
		cfg.TokenSecret = make([]byte, 64)
		if _, err := rand.Read(cfg.TokenSecret); err != nil {
			fmt.Fprintf(os.Stderr, "Could not generate token secret: %s\n", err)
			os.Exit(1)
		}
		log.Printf("WARN  Using generated token secret; all tokens issued will become invalid at shutdown")
	}

	cfg = cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %s\n", err)
		os.Exit(1)
	}

	store, err := cfg.DB.Connect()
	if err != nil {
		log.Fatalf("FATAL could not connect to database: %s", err)
	}
	defer store.Close()
	log.Printf("DEBUG Store initialized (%s)", cfg.DB.Type)

	if *flagBootstrap != "" {
		if err := bootstrapUser(store.Users(), *flagBootstrap); err != nil {
			log.Fatalf("FATAL could not bootstrap user: %s", err)
		}
	}

	backend := tunas.NewService(store)
	router := api.Router(backend, store.Users(), cfg.TokenSecret, cfg.UnauthDelay(), cfg.MaxGrammarSizeBytes)

	listenAddr := fmt.Sprintf("%s:%d", addr, port)
	log.Printf("INFO  Starting parse server on %s...", listenAddr)
	if err := http.ListenAndServe(listenAddr, router); err != nil {
		log.Fatalf("FATAL server exited: %s", err)
	}
}

// envOrFlag returns the flag's value if it was explicitly set on the command
// line, else the named environment variable's value (which may be empty).
func envOrFlag(envName, flagName, flagValue string) string {
	if pflag.Lookup(flagName).Changed {
		return flagValue
	}
	return os.Getenv(envName)
}

// resolveListenAddr parses the configured listen address into a bind
// address and port, defaulting to localhost:8080 if none is given.
func resolveListenAddr() (addr string, port int, err error) {
	listenAddr := envOrFlag(EnvListen, "listen", *flagListen)
	if listenAddr == "" {
		return "localhost", 8080, nil
	}

	bindParts := strings.SplitN(listenAddr, ":", 2)
	if len(bindParts) != 2 {
		return "", 0, fmt.Errorf("listen address is not in ADDRESS:PORT or :PORT format")
	}

	p, err := strconv.Atoi(bindParts[1])
	if err != nil {
		return "", 0, fmt.Errorf("%q is not a valid port number", bindParts[1])
	}

	addr = bindParts[0]
	if addr == "" {
		addr = "localhost"
	}
	return addr, p, nil
}

// normalizeSecret repeats secret until it meets server.MinSecretSize, and
// reports via stderr (without aborting) if it exceeds server.MaxSecretSize.
func normalizeSecret(secret []byte) []byte {
	for len(secret) < server.MinSecretSize {
		doubled := make([]byte, len(secret)*2)
		copy(doubled, secret)
		copy(doubled[len(secret):], secret)
		secret = doubled
	}
	if len(secret) > server.MaxSecretSize {
		fmt.Fprintf(os.Stderr, "WARN  Token secret is %d bytes, but only the first %d will be used\n", len(secret), server.MaxSecretSize)
	}
	return secret
}

// bootstrapUser creates a user from a "USERNAME:PASSWORD" spec if no user
// with that username already exists.
func bootstrapUser(users dao.UserRepository, spec string) error {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("--bootstrap-user must be in USERNAME:PASSWORD format")
	}
	username, password := parts[0], parts[1]

	_, err := users.GetByUsername(context.Background(), username)
	if err == nil {
		log.Printf("INFO  User '%s' already exists, skipping bootstrap", username)
		return nil
	}
	if !errors.Is(err, dao.ErrNotFound) {
		return serr.WrapDB("could not check for existing user", err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	if err != nil {
		return fmt.Errorf("could not hash password: %w", err)
	}

	addr := &mail.Address{Name: username, Address: username + "@localhost"}
	_, err = users.Create(context.Background(), dao.User{
		Username: username,
		Password: base64.StdEncoding.EncodeToString(passHash),
		Email:    addr,
		Role:     dao.Admin,
	})
	if err != nil {
		return fmt.Errorf("could not create user: %w", err)
	}
	log.Printf("INFO  Bootstrapped user '%s'", username)
	return nil
}
