package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dmitrymomot/abkit/pkg/allocator"
	"github.com/dmitrymomot/abkit/pkg/experiment"
)

func runValidate(out io.Writer, path string) error {
	exps, err := experiment.LoadDefinitions(path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPERIMENT\tFLAG\tVARIANTS\tMETRICS")
	for _, exp := range exps {
		variants := make([]string, 0, len(exp.Variants))
		for _, v := range exp.Variants {
			label := fmt.Sprintf("%s=%d", v.ID, v.Weight)
			if v.Control {
				label += "*"
			}
			variants = append(variants, label)
		}
		metrics := make([]string, 0, len(exp.Metrics))
		for _, m := range exp.Metrics {
			metrics = append(metrics, fmt.Sprintf("%s(%s,%s)", m.Name, m.Type, m.Goal))
		}
		flag := exp.Flag
		if flag == "" {
			flag = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", exp.ID, flag, strings.Join(variants, " "), strings.Join(metrics, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d experiment(s) valid\n", len(exps))
	return nil
}

func runAssign(out io.Writer, path, experimentID string, participants []string) error {
	exps, err := experiment.LoadDefinitions(path)
	if err != nil {
		return err
	}
	var exp *experiment.Experiment
	for _, e := range exps {
		if e.ID == experimentID {
			exp = e
			break
		}
	}
	if exp == nil {
		return fmt.Errorf("%w: %s in %s", experiment.ErrNotFound, experimentID, path)
	}
	exp.State = experiment.StateRunning

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTICIPANT\tVARIANT")
	for _, p := range participants {
		v, ok := allocator.Pick(exp, p)
		if !ok {
			return fmt.Errorf("assign %s: %w", p, allocator.ErrNoVariants)
		}
		fmt.Fprintf(tw, "%s\t%s\n", p, v.ID)
	}
	return tw.Flush()
}
