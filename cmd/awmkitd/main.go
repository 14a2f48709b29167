// Command awmkitd embeds and detects tamper-evident audio watermarks, and
// manages the key/tag/evidence stores behind them. Subcommand parsing stays
// on plain flag.NewFlagSet, the same no-framework choice the teacher makes
// for its own single-command CLI.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SakuzyPeng/awmkit/internal/aggregate"
	"github.com/SakuzyPeng/awmkit/internal/config"
	"github.com/SakuzyPeng/awmkit/internal/decode"
	"github.com/SakuzyPeng/awmkit/internal/evidence"
	"github.com/SakuzyPeng/awmkit/internal/keystore"
	"github.com/SakuzyPeng/awmkit/internal/message"
	"github.com/SakuzyPeng/awmkit/internal/metrics"
	"github.com/SakuzyPeng/awmkit/internal/oracle"
	"github.com/SakuzyPeng/awmkit/internal/oraclebin"
	"github.com/SakuzyPeng/awmkit/internal/orchestrator"
	"github.com/SakuzyPeng/awmkit/internal/proof"
	"github.com/SakuzyPeng/awmkit/internal/route"
	"github.com/SakuzyPeng/awmkit/internal/store"
	"github.com/SakuzyPeng/awmkit/internal/tag"
	"github.com/SakuzyPeng/awmkit/internal/tagstore"
)

// app bundles the stores and bridges every subcommand needs, opened once in
// main and threaded through by value.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	keys     *keystore.KeyStore
	tags     *tagstore.TagStore
	evidence *evidence.Store
}

func main() {
	log.SetFlags(log.LstdFlags)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	sub := os.Args[1]
	args := os.Args[2:]

	if sub == "status" {
		runStatus(cfg)
		return
	}

	a, err := openApp(cfg)
	if err != nil {
		log.Fatalf("awmkitd: %v", err)
	}
	defer a.db.Close()

	switch sub {
	case "embed":
		a.runEmbed(args)
	case "detect":
		a.runDetect(args)
	case "tag":
		a.runTag(args)
	case "key":
		a.runKey(args)
	case "evidence":
		a.runEvidence(args)
	case "serve":
		a.runServe(args)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: awmkitd <embed|detect|tag|key|evidence|status|serve> [flags]")
}

func openApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", cfg.StateDir, err)
	}
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	fb, err := keystore.NewFileBackend(cfg.KeysDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open key backend: %w", err)
	}
	ts, err := tagstore.Open(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open tag store: %w", err)
	}
	es, err := evidence.Open(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open evidence store: %w", err)
	}
	return &app{
		cfg:      cfg,
		db:       db,
		keys:     keystore.New(fb, db),
		tags:     ts,
		evidence: es,
	}, nil
}

func (a *app) newOracleEngine() (*oracle.Engine, error) {
	if a.cfg.RuntimeStrict {
		if a.cfg.OracleBinaryPath == "" {
			return nil, fmt.Errorf("runtime strict: AWMKIT_ORACLE_BINARY must be set; PATH is not searched")
		}
		abs, err := filepath.Abs(a.cfg.OracleBinaryPath)
		if err == nil {
			_, err = exec.LookPath(abs)
		}
		if err != nil {
			return nil, fmt.Errorf("runtime strict: oracle binary %s is not runnable: %w", a.cfg.OracleBinaryPath, err)
		}
		return &oracle.Engine{BinaryPath: abs, Strength: 10}, nil
	}
	engine, err := oracle.NewEngine(a.cfg.OracleBinaryPath)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

func runStatus(cfg *config.Config) {
	fmt.Printf("state dir:        %s\n", cfg.StateDir)
	fmt.Printf("db path:          %s\n", cfg.DBPath)
	fmt.Printf("keys dir:         %s\n", cfg.KeysDir)
	fmt.Printf("runtime cache:    %s\n", cfg.RuntimeCacheDir)
	fmt.Printf("oracle binary:    %s\n", orDefault(cfg.OracleBinaryPath, "(search PATH)"))
	fmt.Printf("fpcalc binary:    %s\n", orDefault(cfg.FpcalcBinaryPath, "(search PATH)"))
	fmt.Printf("default lfe mode: %s\n", cfg.LfeMode)
	fmt.Printf("runtime strict:   %v\n", cfg.RuntimeStrict)

	caps := decode.DetectCapabilities(context.Background())
	fmt.Printf("ffmpeg backend:   %s\n", caps.Backend)
	fmt.Printf("eac3 decode:      %v\n", caps.EAC3Decode)
	fmt.Printf("mp4/mkv/ts:       %v/%v/%v\n", caps.ContainerMP4, caps.ContainerMKV, caps.ContainerTS)

	if _, err := oracle.NewEngine(cfg.OracleBinaryPath); err != nil {
		fmt.Printf("oracle resolve:   error: %v\n", err)
	} else {
		fmt.Printf("oracle resolve:   ok\n")
	}
	if _, err := oraclebin.NewFpcalcFingerprinter(cfg.FpcalcBinaryPath); err != nil {
		fmt.Printf("fpcalc resolve:   error: %v\n", err)
	} else {
		fmt.Printf("fpcalc resolve:   ok\n")
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (a *app) runEmbed(args []string) {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	in := fs.String("in", "", "input audio file")
	out := fs.String("out", "", "output audio file")
	identity := fs.String("identity", "", "username to tag (looked up or newly assigned)")
	tagStr := fs.String("tag-literal", "", "explicit tag string, bypassing tag store lookup")
	slot := fs.Int("slot", -1, "key slot to sign under (-1 = active slot)")
	strength := fs.Int("strength", 0, "embed strength 1-30 (0 = config default)")
	lfe := fs.String("lfe", "", "LFE mode: skip|mono|pair (\"\" = config default)")
	fs.Parse(args)

	if *in == "" || *out == "" {
		log.Fatal("embed: -in and -out are required")
	}

	slotNum := *slot
	if slotNum < 0 {
		active, err := a.keys.ActiveSlot()
		if err != nil {
			log.Fatalf("embed: resolve active slot: %v", err)
		}
		slotNum = active
	}
	key, err := a.keys.LoadSlot(slotNum)
	if err != nil {
		log.Fatalf("embed: load key for slot %d: %v", slotNum, err)
	}

	t, err := a.resolveTag(*identity, *tagStr)
	if err != nil {
		log.Fatalf("embed: %v", err)
	}

	raw, err := message.Encode(1, byte(slotNum), t, key)
	if err != nil {
		log.Fatalf("embed: encode message: %v", err)
	}

	engine, err := a.newOracleEngine()
	if err != nil {
		log.Fatalf("embed: %v", err)
	}
	if *strength > 0 {
		engine = engine.WithStrength(*strength)
	} else {
		engine = engine.WithStrength(a.cfg.OracleStrength)
	}

	lfeMode := route.ParseLfeMode(orDefault(*lfe, a.cfg.LfeMode))
	onFail := func(e *orchestrator.StepFailedError) { log.Printf("embed: %v", e) }

	if err := orchestrator.EmbedMultichannel(context.Background(), engine, *in, *out, raw, lfeMode, onFail); err != nil {
		log.Fatalf("embed: %v", err)
	}
	fmt.Printf("embedded tag %s under slot %d -> %s\n", t.String(), slotNum, *out)
	if a.cfg.SNRAnalysis {
		snr := proof.AnalyzeSNR(context.Background(), *in, *out)
		if snr.SNRdB != nil {
			fmt.Printf("snr: %.2f dB\n", *snr.SNRdB)
		} else if snr.Detail != nil {
			fmt.Printf("snr: %s (%s)\n", snr.Status, *snr.Detail)
		}
	}
}

func (a *app) resolveTag(identity, literal string) (tag.Tag, error) {
	if literal != "" {
		return tag.Parse(literal)
	}
	if identity == "" {
		return tag.Tag{}, fmt.Errorf("either -identity or -tag-literal is required")
	}
	if existing, ok, err := a.tags.LookupTagCI(identity); err != nil {
		return tag.Tag{}, err
	} else if ok {
		return tag.Parse(existing)
	}
	suggested, err := tagstore.Suggest(identity)
	if err != nil {
		return tag.Tag{}, err
	}
	if _, err := a.tags.SaveIfAbsent(identity, suggested.String()); err != nil {
		return tag.Tag{}, err
	}
	return suggested, nil
}

func (a *app) runDetect(args []string) {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	in := fs.String("in", "", "input audio file")
	lfe := fs.String("lfe", "", "LFE mode: skip|mono|pair (\"\" = config default)")
	cloneCheck := fs.Bool("clone-check", true, "run the evidence clone-check classifier on a verified detection")
	fs.Parse(args)

	if *in == "" {
		log.Fatal("detect: -in is required")
	}

	engine, err := a.newOracleEngine()
	if err != nil {
		log.Fatalf("detect: %v", err)
	}
	lfeMode := route.ParseLfeMode(orDefault(*lfe, a.cfg.LfeMode))
	onFail := func(e *orchestrator.StepFailedError) { log.Printf("detect: %v", e) }

	var es *evidence.Store
	var fp *oraclebin.FpcalcFingerprinter
	var matcher oraclebin.SegmentMatcher
	if *cloneCheck {
		es = a.evidence
		fp, err = oraclebin.NewFpcalcFingerprinter(a.cfg.FpcalcBinaryPath)
		if err != nil {
			log.Printf("detect: fpcalc unavailable, disabling clone-check: %v", err)
			es = nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.DetectTimeout)
	defer cancel()

	var outcome *aggregate.Outcome
	if es != nil {
		outcome, err = aggregate.DetectFile(ctx, engine, a.keys, *in, lfeMode, es, fp, matcher, onFail)
	} else {
		outcome, err = aggregate.DetectFile(ctx, engine, a.keys, *in, lfeMode, nil, nil, nil, onFail)
	}
	if err != nil {
		log.Fatalf("detect: %v", err)
	}

	reportDetection(outcome)
}

func reportDetection(outcome *aggregate.Outcome) {
	fmt.Printf("outcome: %s\n", outcome.Kind)
	switch outcome.Kind {
	case aggregate.OutcomeFound:
		d := outcome.Decoded
		fmt.Printf("tag:       %s\n", d.Message.Tag.String())
		fmt.Printf("slot hint: %d\n", d.SlotHint)
		fmt.Printf("slot used: %d\n", d.SlotUsed)
		fmt.Printf("status:    %s\n", d.Status)
		fmt.Printf("timestamp: %s\n", d.Message.TimestampUTC())
		if outcome.Clone != nil {
			metrics.CloneVerdictsTotal.WithLabelValues(cloneVerdictLabel(outcome.Clone.Kind)).Inc()
			reportCloneVerdict(*outcome.Clone)
		}
	case aggregate.OutcomeInvalid:
		fmt.Printf("slot failure: %s (scanned %d slots)\n", outcome.SlotFailure.Status, outcome.SlotFailure.ScanCount)
		if outcome.Unverified != nil {
			fmt.Printf("unverified tag claim: %s\n", outcome.Unverified.Tag.String())
		}
	case aggregate.OutcomeNotFound:
		fmt.Println("no watermark detected")
	case aggregate.OutcomeError:
		fmt.Printf("error: %v\n", outcome.Err)
	}
}

func reportCloneVerdict(v evidence.CloneVerdict) {
	switch v.Kind {
	case evidence.VerdictExact:
		fmt.Printf("clone check: exact match (evidence #%d)\n", v.EvidenceID)
	case evidence.VerdictLikely:
		fmt.Printf("clone check: likely clone of evidence #%d (score %.2f, %.1fs)\n", v.EvidenceID, *v.Score, *v.Duration)
	case evidence.VerdictSuspect:
		fmt.Printf("clone check: suspect (%s)\n", v.Reason)
	case evidence.VerdictUnavailable:
		fmt.Printf("clone check: unavailable (%s)\n", v.Reason)
	}
}

func cloneVerdictLabel(k evidence.VerdictKind) string {
	switch k {
	case evidence.VerdictExact:
		return "exact"
	case evidence.VerdictLikely:
		return "likely"
	case evidence.VerdictSuspect:
		return "suspect"
	default:
		return "unavailable"
	}
}

func (a *app) runTag(args []string) {
	if len(args) < 1 {
		log.Fatal("tag: usage: tag <set|get|rm> ...")
	}
	switch args[0] {
	case "set":
		fs := flag.NewFlagSet("tag set", flag.ExitOnError)
		force := fs.Bool("force", false, "overwrite an existing mapping")
		fs.Parse(args[1:])
		rest := fs.Args()
		if len(rest) != 2 {
			log.Fatal("tag set: usage: tag set [-force] <username> <tag>")
		}
		if err := a.tags.Save(rest[0], rest[1], *force); err != nil {
			log.Fatalf("tag set: %v", err)
		}
		fmt.Printf("%s -> %s\n", rest[0], rest[1])
	case "get":
		if len(args) != 2 {
			log.Fatal("tag get: usage: tag get <username>")
		}
		t, ok, err := a.tags.LookupTagCI(args[1])
		if err != nil {
			log.Fatalf("tag get: %v", err)
		}
		if !ok {
			fmt.Println("(no mapping)")
			return
		}
		fmt.Println(t)
	case "rm":
		if len(args) != 2 {
			log.Fatal("tag rm: usage: tag rm <username>")
		}
		if err := a.tags.Remove(args[1]); err != nil {
			log.Fatalf("tag rm: %v", err)
		}
	default:
		log.Fatalf("tag: unknown subcommand %q", args[0])
	}
}

func (a *app) runKey(args []string) {
	if len(args) < 1 {
		log.Fatal("key: usage: key <list|set|generate|active|rm> ...")
	}
	switch args[0] {
	case "list":
		summaries, err := a.keys.SlotSummaries()
		if err != nil {
			log.Fatalf("key list: %v", err)
		}
		for _, s := range summaries {
			fmt.Printf("slot %2d: %+v\n", s.Slot, s)
		}
	case "generate":
		if len(args) != 2 {
			log.Fatal("key generate: usage: key generate <slot>")
		}
		slot, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("key generate: invalid slot: %v", err)
		}
		key := make([]byte, message.KeyLen)
		if _, err := rand.Read(key); err != nil {
			log.Fatalf("key generate: %v", err)
		}
		if err := a.keys.SaveSlot(slot, key); err != nil {
			log.Fatalf("key generate: %v", err)
		}
		fmt.Printf("slot %d: %s\n", slot, keystore.KeyIDFromMaterial(key))
	case "set":
		if len(args) != 3 {
			log.Fatal("key set: usage: key set <slot> <hex-key>")
		}
		slot, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("key set: invalid slot: %v", err)
		}
		key, err := hex.DecodeString(args[2])
		if err != nil {
			log.Fatalf("key set: invalid hex: %v", err)
		}
		if err := a.keys.SaveSlot(slot, key); err != nil {
			log.Fatalf("key set: %v", err)
		}
	case "active":
		if len(args) != 2 {
			log.Fatal("key active: usage: key active <slot>")
		}
		slot, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("key active: invalid slot: %v", err)
		}
		if err := a.keys.SetActiveSlot(slot); err != nil {
			log.Fatalf("key active: %v", err)
		}
	case "rm":
		if len(args) != 2 {
			log.Fatal("key rm: usage: key rm <slot>")
		}
		slot, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("key rm: invalid slot: %v", err)
		}
		newActive, err := a.keys.DeleteSlotAndReconcileActive(slot)
		if err != nil {
			log.Fatalf("key rm: %v", err)
		}
		fmt.Printf("removed slot %d, active slot is now %d\n", slot, newActive)
	default:
		log.Fatalf("key: unknown subcommand %q", args[0])
	}
}

func (a *app) runEvidence(args []string) {
	if len(args) < 1 {
		log.Fatal("evidence: usage: evidence <list|rm|clear> ...")
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("evidence list", flag.ExitOnError)
		identity := fs.String("identity", "", "filter by identity")
		slot := fs.Int("slot", -1, "filter by key slot (-1 = any)")
		limit := fs.Int("limit", 50, "max rows")
		fs.Parse(args[1:])
		var recs []evidence.Record
		var err error
		if *slot >= 0 {
			recs, err = a.evidence.ListCandidatesLimited(*identity, uint8(*slot), *limit)
		} else {
			recs, err = a.evidence.ListFiltered(*identity, 0, false, *limit)
		}
		if err != nil {
			log.Fatalf("evidence list: %v", err)
		}
		for _, r := range recs {
			when := humanize.Time(time.Unix(int64(r.CreatedAt), 0))
			fmt.Printf("#%d %s slot=%d path=%s recorded=%s\n", r.ID, r.Identity, r.KeySlot, r.FilePath, when)
		}
	case "rm":
		if len(args) != 2 {
			log.Fatal("evidence rm: usage: evidence rm <id>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			log.Fatalf("evidence rm: invalid id: %v", err)
		}
		removed, err := a.evidence.RemoveByID(id)
		if err != nil {
			log.Fatalf("evidence rm: %v", err)
		}
		fmt.Printf("removed: %v\n", removed)
	case "clear":
		fs := flag.NewFlagSet("evidence clear", flag.ExitOnError)
		identity := fs.String("identity", "", "only clear this identity")
		fs.Parse(args[1:])
		n, err := a.evidence.ClearFiltered(*identity, *identity != "")
		if err != nil {
			log.Fatalf("evidence clear: %v", err)
		}
		fmt.Printf("cleared %d rows\n", n)
	default:
		log.Fatalf("evidence: unknown subcommand %q", args[0])
	}
}

func (a *app) runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", a.cfg.MetricsAddr, "metrics listen address")
	fs.Parse(args)
	if *addr == "" {
		log.Fatal("serve: no metrics address configured (set -addr or AWMKIT_METRICS_ADDR)")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	log.Printf("serving metrics on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, mux))
}
