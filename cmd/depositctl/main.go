// depositctl is the operator tool for the deposit server. It talks to the
// private side of the API, the same one the ingestion pipeline uses.
package main

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
)

var (
	server   = flag.String("server", "http://localhost:5006", "base URL of the deposit server")
	username = flag.String("user", "", "username for the private API")
	password = flag.String("pass", "", "password for the private API")
	usage    = `
depositctl [flags] <command> <command arguments>

Possible commands:
    status <collection> <deposit id>

    check <collection> <deposit id>

    requeue <collection> <deposit id>

    meta <collection> <deposit id>

    download <collection> <deposit id> <target file>
`
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) < 3 {
		fmt.Println(usage)
		return
	}

	var err error
	switch args[0] {
	case "status":
		err = dostatus(args[1], args[2])
	case "check":
		err = docheck(args[1], args[2])
	case "requeue":
		err = dorequeue(args[1], args[2])
	case "meta":
		err = dometa(args[1], args[2])
	case "download":
		if len(args) < 4 {
			fmt.Println(usage)
			return
		}
		err = dodownload(args[1], args[2], args[3])
	default:
		fmt.Println(usage)
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func dostatus(collection, id string) error {
	v, err := getjson(fmt.Sprintf("/%s/%s/meta/", collection, id))
	if err != nil {
		return err
	}
	status, _ := v.GetString("deposit", "status")
	extid, _ := v.GetString("deposit", "external_id")
	origin, _ := v.GetString("origin", "url")
	fmt.Println("Status:", status)
	fmt.Println("ExternalID:", extid)
	fmt.Println("Origin:", origin)
	return nil
}

func docheck(collection, id string) error {
	v, err := getjson(fmt.Sprintf("/%s/%s/check/", collection, id))
	if err != nil {
		return err
	}
	status, _ := v.GetString("status")
	fmt.Println("Status:", status)
	if detail, err := v.GetObject("status_detail"); err == nil && detail != nil {
		fmt.Println("Detail:", detail.String())
	}
	return nil
}

func dorequeue(collection, id string) error {
	route := fmt.Sprintf("/%s/%s/update/", collection, id)
	req, err := http.NewRequest("PUT", *server+route, strings.NewReader(`{"status": "verified"}`))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := ioutil.ReadAll(resp.Body)
		return fmt.Errorf("received status %d: %s", resp.StatusCode, body)
	}
	fmt.Println("Requeued deposit", id)
	return nil
}

func dometa(collection, id string) error {
	v, err := getjson(fmt.Sprintf("/%s/%s/meta/", collection, id))
	if err != nil {
		return err
	}
	fmt.Println(v.String())
	return nil
}

func dodownload(collection, id, target string) error {
	req, err := http.NewRequest("GET", *server+fmt.Sprintf("/%s/%s/raw/", collection, id), nil)
	if err != nil {
		return err
	}
	resp, err := do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("received status %d", resp.StatusCode)
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	cerr := f.Close()
	if err == nil {
		err = cerr
	}
	if err == nil {
		fmt.Println("Wrote", n, "bytes to", target)
	}
	return err
}

func getjson(route string) (*jason.Object, error) {
	req, err := http.NewRequest("GET", *server+route, nil)
	if err != nil {
		return nil, err
	}
	resp, err := do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("received status %d", resp.StatusCode)
	}
	return jason.NewObjectFromReader(resp.Body)
}

var client = &http.Client{Timeout: 10 * time.Minute}

func do(req *http.Request) (*http.Response, error) {
	if *username != "" {
		req.SetBasicAuth(*username, *password)
	}
	return client.Do(req)
}
