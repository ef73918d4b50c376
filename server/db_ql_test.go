package server

import (
	"testing"
	"time"

	"github.com/swordd/depositd/deposit"
)

func TestQlDepositLifecycle(t *testing.T) {
	qc := NewQlDB("memory")
	if qc == nil {
		t.Fatal("could not open embedded database")
	}

	col := &deposit.Collection{Name: "test"}
	if err := qc.UpsertCollection(col); err != nil {
		t.Fatal(err)
	}
	client := &deposit.Client{
		Username:    "tester",
		Secret:      "secret",
		Collections: []int64{col.ID},
		ProviderURL: "https://forge.example.org/",
	}
	if err := qc.UpsertClient(client); err != nil {
		t.Fatal(err)
	}
	c2, err := qc.ClientByUsername("tester")
	if err != nil {
		t.Fatal(err)
	}
	if c2.ID != client.ID || len(c2.Collections) != 1 || c2.Collections[0] != col.ID {
		t.Errorf("client = %+v", c2)
	}

	d := &deposit.Deposit{
		ClientID:      client.ID,
		CollectionID:  col.ID,
		ExternalID:    "proj-one",
		ReceptionDate: time.Now(),
		Status:        deposit.StatusPartial,
		OriginURL:     "https://forge.example.org/proj-one",
	}
	if err := qc.CreateDeposit(d); err != nil {
		t.Fatal(err)
	}
	if d.ID == 0 {
		t.Fatal("deposit was not assigned an id")
	}

	// illegal transition is refused and leaves the row alone
	_, err = qc.Mutate(d.ID, func(d *deposit.Deposit) error {
		d.Status = deposit.StatusDone
		return nil
	})
	if err != deposit.ErrBadTransition {
		t.Errorf("mutate partial->done error = %v", err)
	}
	d2, err := qc.Deposit(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d2.Status != deposit.StatusPartial {
		t.Errorf("status = %v after refused transition", d2.Status)
	}

	// walk the happy path
	for _, next := range []deposit.Status{
		deposit.StatusDeposited,
		deposit.StatusVerified,
		deposit.StatusLoading,
		deposit.StatusDone,
	} {
		_, err = qc.Mutate(d.ID, func(d *deposit.Deposit) error {
			d.Status = next
			if next == deposit.StatusDone {
				d.SWHID = "swh:1:dir:0123456789abcdef0123456789abcdef01234567"
			}
			return nil
		})
		if err != nil {
			t.Fatalf("mutate to %v: %v", next, err)
		}
	}
	d2, err = qc.LastDoneDeposit(client.ID, "proj-one")
	if err != nil {
		t.Fatal(err)
	}
	if d2.ID != d.ID || d2.SWHID == "" {
		t.Errorf("last done deposit = %+v", d2)
	}

	deposits, total, err := qc.DepositsByCollection(col.ID, client.ID, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(deposits) != 1 || deposits[0].ID != d.ID {
		t.Errorf("listing = %+v total %d", deposits, total)
	}
}

func TestQlRequests(t *testing.T) {
	qc := NewQlDB("memory")
	if qc == nil {
		t.Fatal("could not open embedded database")
	}

	d := &deposit.Deposit{
		ClientID:      1,
		CollectionID:  1,
		ReceptionDate: time.Now(),
		Status:        deposit.StatusPartial,
	}
	if err := qc.CreateDeposit(d); err != nil {
		t.Fatal(err)
	}

	err := qc.AddRequest(&deposit.Request{
		DepositID:   d.ID,
		Type:        deposit.RequestArchive,
		Date:        time.Now(),
		ArchiveName: "payload.zip",
		ArchiveKey:  "d00000001-abcd",
		ArchiveSize: 1234,
		ArchiveMD5:  "0123456789abcdef0123456789abcdef",
	})
	if err != nil {
		t.Fatal(err)
	}
	err = qc.AddRequest(&deposit.Request{
		DepositID:   d.ID,
		Type:        deposit.RequestMetadata,
		Date:        time.Now(),
		RawMetadata: []byte("<entry/>"),
	})
	if err != nil {
		t.Fatal(err)
	}

	reqs, err := qc.Requests(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 2 {
		t.Fatalf("requests = %+v", reqs)
	}
	if reqs[0].Type != deposit.RequestArchive || reqs[0].ArchiveKey != "d00000001-abcd" {
		t.Errorf("archive request = %+v", reqs[0])
	}
	if reqs[1].Type != deposit.RequestMetadata || string(reqs[1].RawMetadata) != "<entry/>" {
		t.Errorf("metadata request = %+v", reqs[1])
	}

	if err := qc.DeleteRequest(reqs[0].ID); err != nil {
		t.Fatal(err)
	}
	reqs, err = qc.Requests(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 1 || reqs[0].Type != deposit.RequestMetadata {
		t.Errorf("requests after delete = %+v", reqs)
	}

	if err := qc.DeleteRequestsByType(d.ID, deposit.RequestMetadata); err != nil {
		t.Fatal(err)
	}
	reqs, err = qc.Requests(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 0 {
		t.Errorf("requests after delete by type = %+v", reqs)
	}

	if err := qc.DeleteDeposit(d.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := qc.Deposit(d.ID); err != deposit.ErrNotFound {
		t.Errorf("deposit lookup after delete = %v", err)
	}
}

func TestQlJanitorQueries(t *testing.T) {
	qc := NewQlDB("memory")
	if qc == nil {
		t.Fatal("could not open embedded database")
	}
	now := time.Now()

	old := &deposit.Deposit{
		ClientID:      1,
		CollectionID:  1,
		ReceptionDate: now.Add(-48 * time.Hour),
		Status:        deposit.StatusPartial,
	}
	fresh := &deposit.Deposit{
		ClientID:      1,
		CollectionID:  1,
		ReceptionDate: now,
		Status:        deposit.StatusPartial,
	}
	if err := qc.CreateDeposit(old); err != nil {
		t.Fatal(err)
	}
	if err := qc.CreateDeposit(fresh); err != nil {
		t.Fatal(err)
	}
	stale, err := qc.PartialsBefore(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Errorf("stale partials = %+v", stale)
	}

	if err := qc.AddTemporaryArchive("/tmp/agg-1", now.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := qc.AddTemporaryArchive("/tmp/agg-2", now); err != nil {
		t.Fatal(err)
	}
	aged, err := qc.TemporaryArchivesBefore(now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(aged) != 1 || aged[0].Path != "/tmp/agg-1" {
		t.Errorf("aged archives = %+v", aged)
	}
	if err := qc.DeleteTemporaryArchive(aged[0].ID); err != nil {
		t.Fatal(err)
	}
	aged, err = qc.TemporaryArchivesBefore(now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(aged) != 1 || aged[0].Path != "/tmp/agg-2" {
		t.Errorf("archives after delete = %+v", aged)
	}
}
