// depositd is the deposit server daemon. Configuration comes from a TOML
// file, with a handful of flags for the common development overrides.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	units "github.com/docker/go-units"
	raven "github.com/getsentry/raven-go"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/scheduler"
	"github.com/swordd/depositd/server"
)

type configData struct {
	Port            string
	Storage         string // payload store location, file: or s3:
	Mysql           string // MySQL dial string, parseTime=true is added
	QlPath          string // fallback embedded database file
	MaxUploadSize   string // human readable, e.g. "200MB"
	ChecksEnabled   bool
	NsqdAddress     string // host:port of the nsqd TCP interface
	NsqdTopic       string
	SentryDSN       string
	ExtractionDir   string
	ExpireAfter     string // duration, e.g. "720h"
	CleanupSchedule string // cron schedule of the janitor
	ForwardURL      string // metadata amendment endpoint
	PrivateUsers    map[string]string

	// development seeding
	Collections []string
	Clients     []clientData
}

type clientData struct {
	Username    string
	Secret      string
	ProviderURL string
	Domain      string
	Collections []string
}

func main() {
	var configFile = flag.String("config-file", "", "location of the configuration file")
	var portNumber = flag.String("port", "", "port to listen on (overrides config)")
	var storageDir = flag.String("storage", "", "payload store location (overrides config)")
	flag.Parse()

	var config configData
	if *configFile != "" {
		if _, err := toml.DecodeFile(*configFile, &config); err != nil {
			log.Fatalln("Error reading configuration:", err)
		}
	}
	if *portNumber != "" {
		config.Port = *portNumber
	}
	if *storageDir != "" {
		config.Storage = *storageDir
	}
	if config.SentryDSN != "" {
		raven.SetDSN(config.SentryDSN)
	}

	var maxsize int64
	if config.MaxUploadSize != "" {
		var err error
		maxsize, err = units.FromHumanSize(config.MaxUploadSize)
		if err != nil {
			log.Fatalln("Error parsing MaxUploadSize:", err)
		}
	}
	var expire time.Duration
	if config.ExpireAfter != "" {
		var err error
		expire, err = time.ParseDuration(config.ExpireAfter)
		if err != nil {
			log.Fatalln("Error parsing ExpireAfter:", err)
		}
	}

	var db deposit.DB
	if config.Mysql != "" {
		var err error
		db, err = server.NewMysqlDB(config.Mysql + "?parseTime=true")
		if err != nil {
			log.Fatalln("Error connecting to MySQL:", err)
		}
	} else {
		qlpath := config.QlPath
		if qlpath == "" {
			qlpath = "memory"
		}
		log.Println("Using embedded database", qlpath)
		db = server.NewQlDB(qlpath)
		if db == nil {
			log.Fatalln("Error opening embedded database")
		}
	}
	seed(db, config)

	var sched scheduler.Scheduler
	if config.NsqdAddress != "" {
		topic := config.NsqdTopic
		if topic == "" {
			topic = "deposit-load"
		}
		nsq, err := scheduler.NewNSQ(config.NsqdAddress, topic)
		if err != nil {
			log.Fatalln("Error connecting to nsqd:", err)
		}
		defer nsq.Stop()
		sched = nsq
	}

	var forwarder server.MetadataForwarder
	if config.ForwardURL != "" {
		forwarder = server.NewHTTPForwarder(config.ForwardURL)
	}

	extractdir := config.ExtractionDir
	if extractdir == "" {
		extractdir = os.TempDir()
	}

	s := &server.RESTServer{
		PortNumber:      config.Port,
		DB:              db,
		Storage:         parselocation(config.Storage, "deposits"),
		Scheduler:       sched,
		Forwarder:       forwarder,
		MaxUploadSize:   maxsize,
		ChecksEnabled:   config.ChecksEnabled,
		ExtractionDir:   extractdir,
		ExpireAfter:     expire,
		CleanupSchedule: config.CleanupSchedule,
		PrivateUsers:    config.PrivateUsers,
	}

	// handle signals gracefully
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Received signal, exiting")
		s.Stop()
	}()

	if err := s.Run(); err != nil {
		log.Fatalln(err)
	}
}

// seed inserts the collections and clients listed in the configuration
// file. Production provisioning happens through depositctl; this exists so
// a development server comes up ready to use.
func seed(db deposit.DB, config configData) {
	ids := make(map[string]int64)
	for _, name := range config.Collections {
		col := &deposit.Collection{Name: name}
		if err := db.UpsertCollection(col); err != nil {
			log.Fatalln("Error seeding collection", name, ":", err)
		}
		ids[name] = col.ID
	}
	for _, c := range config.Clients {
		client := &deposit.Client{
			Username:    c.Username,
			Secret:      c.Secret,
			ProviderURL: c.ProviderURL,
			Domain:      c.Domain,
		}
		for _, name := range c.Collections {
			id, ok := ids[name]
			if !ok {
				col, err := db.CollectionByName(name)
				if err != nil {
					log.Fatalln("Client", c.Username, "references unknown collection", name)
				}
				id = col.ID
			}
			client.Collections = append(client.Collections, id)
		}
		if err := db.UpsertClient(client); err != nil {
			log.Fatalln("Error seeding client", c.Username, ":", err)
		}
	}
}
