package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	kitlog "github.com/go-kit/kit/log"
	"github.com/spf13/viper"

	rdv "github.com/orbitalarena/rendezvous"
)

// This code reads a plan file, runs it on a session and exports the outcome.

const defaultScenario = "~~unset~~"

var (
	scenario string
	verbose  bool
)

func init() {
	flag.StringVar(&scenario, "scenario", defaultScenario, "rendezvous plan TOML file")
	flag.BoolVar(&verbose, "verbose", false, "really verbose (esp. for configuration)")
}

type plannedBurn struct {
	time float64
	dv   rdv.Vec3
}

func main() {
	flag.Parse()
	if scenario == defaultScenario {
		log.Fatal("no scenario provided")
	}
	plan := viper.New()
	plan.SetConfigFile(scenario)
	if err := plan.ReadInConfig(); err != nil {
		log.Fatalf("%s: Error %s", scenario, err)
	}

	logger := kitlog.NewNopLogger()
	if verbose {
		logger = kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	}

	cfg, err := rdv.LoadConfig(plan.GetString("config"))
	if err != nil {
		log.Fatal(err)
	}
	ic := rdv.NewGEOInitialConditions(plan.GetFloat64("scenario.separation_deg"), rdv.DefaultBurnBudget)
	if path := plan.GetString("scenario.initial"); path != "" {
		// Relative to the plan file.
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(scenario), path)
		}
		if ic, err = rdv.LoadInitialConditions(path); err != nil {
			log.Fatal(err)
		}
	} else if !plan.IsSet("scenario.separation_deg") {
		log.Fatal("scenario.initial or scenario.separation_deg is required")
	}
	if plan.IsSet("scenario.budget") {
		ic.BurnBudget = plan.GetFloat64("scenario.budget")
	}
	sess, err := rdv.NewSession(ic, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	if verbose {
		log.Printf("[conf] %+v\n", cfg)
		log.Printf("[init] %+v\n", sess.State())
	}

	var burns []plannedBurn
	if plan.IsSet("sweep") {
		res, err := sess.SweepInterceptTOF(context.Background(), readRIC(plan, "solve"),
			plan.GetFloat64("sweep.tof_min"), plan.GetFloat64("sweep.tof_max"), plan.GetInt("sweep.steps"), solveOptions(plan))
		if err != nil {
			log.Fatalf("sweep: %s", err)
		}
		for _, sol := range res.All {
			fmt.Printf("tof=%8.1f s\tvalid=%v\tΔv=%.4f m/s\titer=%d\n", sol.TOF, sol.Valid, sol.TotalDV, sol.Iterations)
		}
		if res.Best == nil {
			log.Fatal("sweep: no acceptable time of flight")
		}
		fmt.Printf("best: tof=%.1f s Δv=%.4f m/s\n", res.Best.TOF, res.Best.TotalDV)
		if !plan.IsSet("solve.tof") {
			plan.Set("solve.tof", res.Best.TOF)
		}
	}
	if plan.IsSet("solve.tof") {
		sol, err := sess.SolveInterceptBurn(readRIC(plan, "solve"), plan.GetFloat64("solve.tof"), solveOptions(plan))
		if err != nil {
			log.Fatalf("solve: %s", err)
		}
		fmt.Printf("Δv1=%s (RIC, m/s)\tΔv2=%s\ttotal=%.4f m/s\titer=%d\tmiss=%.3f m\n", sol.DV1RIC, sol.DV2RIC, sol.TotalDV, sol.Iterations, sol.FinalPosErr)
		if plan.GetBool("solve.apply") {
			burns = append(burns, plannedBurn{time: sess.SimTime(), dv: sol.DV1RIC})
			if plan.GetBool("solve.match_velocity") {
				burns = append(burns, plannedBurn{time: sess.SimTime() + sol.TOF, dv: sol.DV2RIC})
			}
		}
	}

	// Maneuvers
	duration := plan.GetFloat64("propagate.duration")
	for burnNo := 0; plan.IsSet(fmt.Sprintf("burns.%d", burnNo)); burnNo++ {
		b := plannedBurn{time: plan.GetFloat64(fmt.Sprintf("burns.%d.time", burnNo)), dv: readRIC(plan, fmt.Sprintf("burns.%d", burnNo))}
		if b.time > duration {
			log.Printf("[WARNING] burn %d scheduled out of propagation time", burnNo)
			continue
		}
		burns = append(burns, b)
	}
	sort.SliceStable(burns, func(i, j int) bool { return burns[i].time < burns[j].time })

	for _, b := range burns {
		if dt := b.time - sess.SimTime(); dt > 0 {
			if err := sess.Step(dt); err != nil {
				log.Fatal(err)
			}
		}
		if rec, err := sess.ApplyBurn(b.dv); err != nil {
			log.Printf("[WARNING] burn at %.1f s skipped: %s", b.time, err)
		} else if verbose {
			log.Printf("added: %+v", rec)
		}
	}
	if dt := duration - sess.SimTime(); dt > 0 {
		if err := sess.Step(dt); err != nil {
			log.Fatal(err)
		}
	}
	st := sess.State()
	fmt.Printf("t=%.1f s\trange=%.3f m\tRIC=%s m\tfuel=%.4f/%.4f m/s\n", st.SimTime, st.Range, st.RelPosRIC, st.FuelRemaining, st.FuelBudget)

	if dir := plan.GetString("export.dir"); dir != "" {
		if err := export(sess, plan, dir); err != nil {
			log.Fatalf("export: %s", err)
		}
	}
}

func readRIC(plan *viper.Viper, prefix string) rdv.Vec3 {
	return rdv.Vec3{plan.GetFloat64(prefix + ".R"), plan.GetFloat64(prefix + ".I"), plan.GetFloat64(prefix + ".C")}
}

func solveOptions(plan *viper.Viper) rdv.SolveOptions {
	guess, err := rdv.ParseGuessMethod(plan.GetString("solve.guess"))
	if err != nil {
		log.Fatal(err)
	}
	return rdv.SolveOptions{MatchVelocity: plan.GetBool("solve.match_velocity"), Guess: guess}
}

// export writes the session history and the predicted coast of export.duration seconds.
func export(sess *rdv.Session, plan *viper.Viper, dir string) error {
	name := plan.GetString("export.name")
	if name == "" {
		name = sess.Name
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("history-%s.csv", name)))
	if err != nil {
		return err
	}
	if err := rdv.WriteHistoryCSV(f, sess.Snapshots()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	plan.SetDefault("export.duration", 86400)
	plan.SetDefault("export.step", 60)
	p, err := sess.PreviewBurn(rdv.Vec3{}, plan.GetFloat64("export.duration"), plan.GetFloat64("export.step"))
	if err != nil {
		return err
	}
	log.Printf("closest approach in the next %.0f s: %.3f m at %.1f s", plan.GetFloat64("export.duration"), p.Closest.Range, p.Closest.Time)
	return rdv.ExportTrajectory(dir, name, sess.Epoch(), p.Samples)
}
