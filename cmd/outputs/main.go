package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"ksatagent"
)

func main() {
	cfg := ksatagent.LoadConfig()

	var (
		backendURL = flag.String("backend", cfg.BackendURL, "Backend base URL (or set BACKEND_URL env var)")
		open       = flag.Int("open", 0, "Open the N-th saved output (1-based) and render it")
		filename   = flag.String("file", "", "Open a saved output by filename")
		offline    = flag.Bool("offline", false, "Use the local cache instead of the backend")
		asJSON     = flag.Bool("json", false, "Print the artifact as JSON instead of rendered text")
		dbPath     = flag.String("db", cfg.CacheDB, "Cache database path")
		verbose    = flag.Bool("verbose", cfg.Verbose, "Enable verbose output")
	)

	flag.Parse()

	ksatagent.SetVerbose(*verbose)
	log := ksatagent.Logger()

	// Initialize cache
	cache, err := ksatagent.OpenCache(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer cache.Close()

	// Create tables if they don't exist
	if err := cache.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	if *offline {
		runOffline(cache, *open, *filename, *asJSON)
		return
	}

	backend, err := ksatagent.NewHTTPBackend(ksatagent.BackendOptions{
		BaseURL:     *backendURL,
		ListTimeout: cfg.ListTimeout,
		LoadTimeout: cfg.LoadTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create backend client: %v", err)
	}

	ctx := context.Background()

	name := *filename
	if name == "" {
		files, err := backend.ListOutputs(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "백엔드 서버와 연결할 수 없습니다. 서버가 실행 중인지 확인하세요.")
			log.Fatalf("Failed to list outputs: %v", err)
		}

		if *open == 0 {
			printListing(files)
			return
		}
		if *open < 1 || *open > len(files) {
			log.Fatalf("No saved output #%d (found %d)", *open, len(files))
		}
		name = files[*open-1].Filename
	}

	artifact, err := backend.GetOutput(ctx, name)
	if err != nil {
		log.Fatalf("파일 불러오기 실패: %v", err)
	}

	if err := cache.Put(name, ksatagent.SourceSaved, artifact); err != nil {
		log.Warnf("Failed to cache %s: %v", name, err)
	}

	// A session holds the loaded artifact the same way the web UI does
	session := ksatagent.NewSession()
	defer session.Close()
	session.LoadSaved(artifact)

	printArtifact(session, *asJSON)
}

func runOffline(cache *ksatagent.OutputCache, open int, filename string, asJSON bool) {
	log := ksatagent.Logger()

	name := filename
	if name == "" {
		rows, err := cache.List(0)
		if err != nil {
			log.Fatalf("Failed to list cache: %v", err)
		}
		if open == 0 {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\t캐시일자\t주제\t문항 수\t출처")
			for i, row := range rows {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", i+1, row.CachedAt.Format("2006-01-02 15:04"), row.Subject, row.QuestionCount, row.Source)
			}
			w.Flush()
			return
		}
		if open < 1 || open > len(rows) {
			log.Fatalf("No cached output #%d (found %d)", open, len(rows))
		}
		name = rows[open-1].Filename
	}

	artifact, err := cache.Get(name)
	if err != nil {
		log.Fatalf("Failed to read cache: %v", err)
	}

	session := ksatagent.NewSession()
	defer session.Close()
	session.LoadSaved(artifact)

	printArtifact(session, asJSON)
}

func printListing(files []ksatagent.OutputFile) {
	if len(files) == 0 {
		fmt.Println("저장된 결과 파일이 없습니다.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\t생성일자\t대분야\t주제\t문항 수")
	for i, f := range files {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", i+1, f.CreatedAt, f.Category, f.Subject, f.QuestionCount)
	}
	w.Flush()
}

func printArtifact(session *ksatagent.Session, asJSON bool) {
	artifact, _ := session.Results.Get()
	if asJSON {
		out, err := json.MarshalIndent(artifact, "", "  ")
		if err != nil {
			ksatagent.Logger().Fatalf("Failed to marshal artifact: %v", err)
		}
		fmt.Println(string(out))
		return
	}
	fmt.Print(ksatagent.RenderText(ksatagent.FormatArtifact(artifact)))
}
