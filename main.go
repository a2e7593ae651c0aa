package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CodedInternet/sentrygun/comms"
	"github.com/CodedInternet/sentrygun/logging"
	"github.com/CodedInternet/sentrygun/onboard"
	"github.com/CodedInternet/sentrygun/onboard/hardware"
	"github.com/CodedInternet/sentrygun/onboard/serialbus"
	"github.com/CodedInternet/sentrygun/store"
	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog"
)

type EnvConfig struct {
	JWT_ISSUER string `env:"JWT_ISSUER" envDefault:"DEV"`
	JWT_SECRET string `env:"JWT_SECRET"`
	DEBUG      bool   `env:"DEBUG" envDefault:"false"`
	LOG_LEVEL  string `env:"LOG_LEVEL" envDefault:"info"`
	LOG_FILE   string `env:"LOG_FILE"`
	CONFIG     string `env:"SENTRY_CONFIG" envDefault:"./turret.yaml"`
	DB_FILE    string `env:"SENTRY_DB" envDefault:"./tmp/dev.db"`
	HTMLDIR    string `env:"HTMLDIR"`

	DB        *storm.DB
	Journal   *store.Journal
	Turret    onboard.Turret
	Channel   *serialbus.Channel
	Hub       *comms.Hub
	Log       zerolog.Logger
	Simulated bool
}

// SIM_HISTORY is how many frames a simulated board keeps for inspection.
const SIM_HISTORY = 256

var (
	ENV = new(EnvConfig)
)

func main() {
	// process flags
	simulated := flag.Bool("sim", false, "Run against a simulated controller board")
	port := flag.String("port", "0.0.0.0:8080", "Specify the ip:port to listen on")
	noShell := flag.Bool("noshell", false, "Do not start the development shell")
	flag.Parse()

	if err := env.Parse(ENV); err != nil {
		panic(err)
	}
	ENV.Simulated = *simulated
	if ENV.JWT_SECRET != "" {
		JWT_HMAC_SECRET = []byte(ENV.JWT_SECRET)
	}

	var logFile io.Writer
	if ENV.LOG_FILE != "" {
		f, err := os.OpenFile(ENV.LOG_FILE, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		logFile = f
	}
	ENV.Log = logging.New(ENV.LOG_LEVEL, logFile)
	log := ENV.Log

	db, err := openDb(ENV.DB_FILE)
	if err != nil {
		log.Fatal().Err(err).Str("file", ENV.DB_FILE).Msg("unable to open database")
	}
	ENV.DB = db
	defer ENV.DB.Close() // close database when finished

	ENV.Journal, err = store.NewJournal(db)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open journal")
	}

	config, err := onboard.LoadConfig(ENV.CONFIG)
	if err != nil {
		log.Fatal().Err(err).Str("file", ENV.CONFIG).Msg("unable to load config")
	}

	channel, err := openChannel(config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open command link")
	}
	defer channel.Close()
	ENV.Channel = channel

	turret, err := onboard.NewSentryTurret(config, channel, hardware.SystemClock{}, ENV.Journal, log)
	if turret == nil {
		log.Fatal().Err(err).Msg("unable to initialize turret")
	}
	if err != nil {
		log.Error().Err(err).Msg("turret started out of sync, resync required")
	}
	ENV.Turret = turret

	ENV.Hub = comms.NewHub(comms.NewConductor(turret, log), hardware.SystemClock{}, log)
	turret.AddListener(ENV.Hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ENV.Hub.Run(ctx, time.Second)

	if !*noShell {
		go newShell(turret, channel, log).Start()
	}

	log.Info().Str("addr", *port).Bool("simulated", ENV.Simulated).Msg("listening")
	if err := http.ListenAndServe(*port, NewRouter()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// openChannel connects to the controller board, or to a simulated one.
func openChannel(config onboard.TurretConfig, log zerolog.Logger) (*serialbus.Channel, error) {
	if ENV.Simulated {
		log.Info().Msg("creating simulated board")
		board := onboard.NewSimulatedBoard(log)
		board.Echo = true
		board.History = SIM_HISTORY
		return serialbus.NewChannel(board, log), nil
	}

	port, err := serialbus.Open(config.Serial.Port, config.Serial.PortOptions)
	if err != nil {
		return nil, err
	}
	log.Info().Str("port", config.Serial.Port).Int("baud", config.Serial.BaudRate).Msg("serial link open")
	return serialbus.NewChannel(port, log), nil
}

func openDb(dbFile string) (db *storm.DB, err error) {
	dir := filepath.Dir(dbFile)
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return
		}
	}

	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	// call inits for each type
	if err := db.Init(&User{}); err != nil {
		return nil, err
	}

	return
}

// NewRouter builds the HTTP API.
func NewRouter() chi.Router {
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer) // make sure this is last

	r.Route("/api", func(r chi.Router) {
		// login
		r.Post("/login", Login)

		r.Group(func(r chi.Router) {
			// Seek, verify and validate JWT tokens
			r.Use(ValidateJWT)

			r.Get("/refresh_token", JWTRefresh)
			r.Get("/state", GetState)
			r.Get("/shots", Shots)

			// anything that moves the turret or touches the relays
			r.Group(func(r chi.Router) {
				r.Use(RequireOperator)

				r.Post("/cycle", Cycle)
				r.Post("/aim", Aim)
				r.Post("/fire", Fire)
				r.Post("/resync", Resync)
				r.Post("/raw", Raw)
			})
		})
	})

	// Add websocket routes
	r.Route("/ws", func(r chi.Router) {
		if !ENV.DEBUG {
			r.Use(ValidateJWT)
		} else {
			ENV.Log.Warn().Msg("running in debug mode, websocket authentication disabled")
		}

		if ENV.Hub != nil {
			r.Get("/state", serveSocket)
		}
	})

	// add static base routes
	if ENV.HTMLDIR != "" {
		FileServer(r, "/", http.Dir(ENV.HTMLDIR))
	}

	return r
}

// serveSocket only feeds socket commands to the turret for operators. Observers get
// the event stream alone.
func serveSocket(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if ENV.DEBUG || (ok && claims.CanOperate()) {
		ENV.Hub.ServeHTTP(w, r)
		return
	}
	ENV.Hub.ServeObserver(w, r)
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	}))
}
