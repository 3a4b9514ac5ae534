package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"ksatagent"
)

func main() {
	cfg := ksatagent.LoadConfig()

	var (
		backendURL   = flag.String("backend", cfg.BackendURL, "Backend base URL (or set BACKEND_URL env var)")
		field        = flag.String("field", "인문예술", "Field category")
		subfield     = flag.String("subfield", "서양철학", "Subfield category")
		twoPart      = flag.Bool("two-part", false, "Request a (가)/(나) two-part passage")
		subject      = flag.String("subject", "", "Subject override (default: automatic)")
		points       = flag.String("points", "", "Emphasis point override (default: automatic)")
		numQuestions = flag.Int("questions", 3, "Number of questions to generate (1-6)")
		types        = flag.String("types", "", "Comma separated question types, one per question")
		styles       = flag.String("styles", "", "Comma separated question styles, one per question")
		answers      = flag.String("answers", "", "Comma separated answers (①-⑤ or 1-5), one per question")
		outputFile   = flag.String("output", "", "Output file for the artifact (default: stdout)")
		asJSON       = flag.Bool("json", false, "Write the artifact as JSON instead of rendered text")
		noCache      = flag.Bool("no-cache", false, "Do not store the artifact in the local cache")
		verbose      = flag.Bool("verbose", cfg.Verbose, "Enable verbose debugging output")
	)

	flag.Parse()

	ksatagent.SetVerbose(*verbose)
	log := ksatagent.Logger()

	if *numQuestions < 1 || *numQuestions > 6 {
		log.Fatal("Number of questions must be between 1 and 6. Use -questions flag.")
	}

	req := ksatagent.GenerationRequest{
		Field:       *field,
		Subfield:    *subfield,
		PassageType: ksatagent.PassageSingle,
	}
	if *twoPart {
		req.PassageType = ksatagent.PassageTwoPart
	}
	if *subject != "" {
		req.Subject = subject
	}
	if *points != "" {
		req.Points = points
	}

	specs, err := buildQuestionSpecs(*numQuestions, splitList(*types), splitList(*styles), splitList(*answers))
	if err != nil {
		log.Fatalf("Invalid question settings: %v", err)
	}
	req.Questions = specs

	backend, err := ksatagent.NewHTTPBackend(ksatagent.BackendOptions{
		BaseURL:     *backendURL,
		ListTimeout: cfg.ListTimeout,
		LoadTimeout: cfg.LoadTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to create backend client: %v", err)
	}

	consumer := ksatagent.NewStreamConsumer(backend, cfg.StreamTimeout)
	consumer.SetLogDir(cfg.LogDir)
	consumer.OnUpdate = func(p ksatagent.Progress, tasks []ksatagent.Task) {
		fmt.Fprint(os.Stderr, ksatagent.RenderProgressText(p, tasks))
	}

	if !*noCache {
		cache, err := ksatagent.OpenCache(cfg.CacheDB)
		if err != nil {
			log.Warnf("Cache disabled: %v", err)
		} else {
			defer cache.Close()
			if err := cache.CreateTables(); err != nil {
				log.Warnf("Cache disabled: %v", err)
			} else {
				consumer.Cache = cache
			}
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session := ksatagent.NewSession()
	defer session.Close()

	if _, err := consumer.Run(ctx, session, req); err != nil {
		fmt.Fprintln(os.Stderr, ksatagent.UserMessage(err))
		os.Exit(1)
	}

	artifact, ok := session.Results.Get()
	if !ok {
		log.Fatal("Generation finished without a result")
	}

	var output []byte
	if *asJSON {
		output, err = json.MarshalIndent(artifact, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal artifact: %v", err)
		}
	} else {
		output = []byte(ksatagent.RenderText(ksatagent.FormatArtifact(artifact)))
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0644); err != nil {
			log.Fatalf("Failed to write output file: %v", err)
		}
		log.Infof("Artifact saved to: %s", *outputFile)
	} else {
		fmt.Println(string(output))
	}
}

// buildQuestionSpecs fills n question specs, using the first allowed value when a list runs short
func buildQuestionSpecs(n int, types, styles, answers []string) ([]ksatagent.QuestionSpec, error) {
	specs := make([]ksatagent.QuestionSpec, 0, n)
	for i := 0; i < n; i++ {
		spec := ksatagent.QuestionSpec{
			QuestionNumber: i + 1,
			QuestionType:   pick(types, i, "보기형"),
			QuestionStyle:  pick(styles, i, "긍정형"),
		}
		answer := pick(answers, i, "①")
		if c, ok := ksatagent.ParseChoiceSymbol(answer); ok {
			spec.Answer = ksatagent.ChoiceSymbol(c)
		} else {
			var num int
			if _, err := fmt.Sscanf(answer, "%d", &num); err != nil || ksatagent.ChoiceSymbol(num) == "" {
				return nil, fmt.Errorf("question %d: invalid answer %q", i+1, answer)
			}
			spec.Answer = ksatagent.ChoiceSymbol(num)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func pick(list []string, i int, def string) string {
	if i < len(list) && list[i] != "" {
		return list[i]
	}
	return def
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
