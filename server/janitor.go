package server

import (
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/swordd/depositd/deposit"
)

// aggregation workspaces older than this are removed by the janitor. The
// ingester pulls the payload within minutes of scheduling, so a day is
// plenty of slack.
const workspaceMaxAge = 24 * time.Hour

// startJanitor schedules the periodic sweep: expiring stale partial
// deposits and removing aged aggregation workspaces.
func (s *RESTServer) startJanitor() {
	if s.CleanupSchedule == "" {
		s.CleanupSchedule = "@hourly"
	}
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.CleanupSchedule, s.janitorSweep)
	if err != nil {
		log.Println("janitor: bad schedule", s.CleanupSchedule, ":", err)
		return
	}
	s.cron.Start()
}

func (s *RESTServer) janitorSweep() {
	s.expireStalePartials()
	s.removeAgedWorkspaces()
}

// expireStalePartials moves partial deposits past the grace period to
// expired and drops their stored payloads. The request rows stay for the
// record.
func (s *RESTServer) expireStalePartials() {
	if s.ExpireAfter <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.ExpireAfter)
	stale, err := s.DB.PartialsBefore(cutoff)
	if err != nil {
		log.Println("janitor: listing stale partials:", err)
		return
	}
	for _, d := range stale {
		reqs, err := s.DB.Requests(d.ID)
		if err != nil {
			log.Println("janitor: deposit", d.ID, ":", err)
			continue
		}
		_, err = s.DB.Mutate(d.ID, func(d *deposit.Deposit) error {
			d.Status = deposit.StatusExpired
			return nil
		})
		if err != nil {
			// lost the race with a client finishing the deposit
			log.Println("janitor: expiring deposit", d.ID, ":", err)
			continue
		}
		s.deletePayloads(reqs)
		log.Println("janitor: expired deposit", d.ID)
	}
}

func (s *RESTServer) removeAgedWorkspaces() {
	cutoff := time.Now().Add(-workspaceMaxAge)
	aged, err := s.DB.TemporaryArchivesBefore(cutoff)
	if err != nil {
		log.Println("janitor: listing workspaces:", err)
		return
	}
	for _, ta := range aged {
		if err := os.RemoveAll(ta.Path); err != nil {
			log.Println("janitor: removing", ta.Path, ":", err)
			continue
		}
		if err := s.DB.DeleteTemporaryArchive(ta.ID); err != nil {
			log.Println("janitor: forgetting", ta.Path, ":", err)
		}
	}
}
