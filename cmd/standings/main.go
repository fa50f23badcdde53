// cmd/standings/main.go
// Prints the standings and certification status of a subcategory, or the
// standings of a whole category.
//
// Usage:
//
//	go run ./cmd/standings -user board1 -subcategory 4
//	go run ./cmd/standings -user board1 -category 2
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/padraicbc/pageantapi/config"
	bundb "github.com/padraicbc/pageantapi/db"
	"github.com/padraicbc/pageantapi/models"
	"github.com/padraicbc/pageantapi/roster"
	"github.com/padraicbc/pageantapi/scoring"
)

func main() {
	username := flag.String("user", "", "username to report as (required)")
	subcategory := flag.Int64("subcategory", 0, "subcategory id")
	category := flag.Int64("category", 0, "category id")
	flag.Parse()

	if *username == "" || (*subcategory == 0) == (*category == 0) {
		log.Fatal("-user and exactly one of -subcategory or -category are required")
	}

	cfg := config.Load()
	db := bundb.Setup(cfg)
	defer db.Close()
	ctx := context.Background()

	user := &models.User{}
	if err := db.NewSelect().Model(user).Where("username = ?", *username).Scan(ctx); err != nil {
		log.Fatalf("load user %q: %v", *username, err)
	}
	role, err := scoring.ParseRole(user.Role)
	if err != nil {
		log.Fatal(err)
	}
	who := scoring.Identity{UserID: user.ID, Role: role}

	svc := scoring.NewService(db, roster.New(db), scoring.WithLogger(zap.NewNop()))

	if *category != 0 {
		standings, err := svc.CategoryRanking(ctx, who, *category)
		if err != nil {
			log.Fatal(err)
		}
		color.New(color.FgCyan).Fprintf(os.Stdout, "\n=== Category %d ===\n", *category)
		renderStandings(os.Stdout, standings)
		return
	}

	standings, err := svc.SubcategoryRanking(ctx, who, *subcategory)
	if err != nil {
		log.Fatal(err)
	}
	st, err := svc.Status(ctx, who, *subcategory)
	if err != nil {
		log.Fatal(err)
	}
	color.New(color.FgCyan).Fprintf(os.Stdout, "\n=== Subcategory %d ===\n", *subcategory)
	renderStandings(os.Stdout, standings)
	renderStatus(os.Stdout, st)
}

func renderStandings(w io.Writer, standings []scoring.Standing) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Rank", "Contestant", "Total", "Max", "Percent", "Scores"})
	for _, s := range standings {
		table.Append([]string{
			strconv.Itoa(s.Rank),
			strconv.FormatInt(s.ContestantID, 10),
			strconv.FormatFloat(s.TotalScore, 'f', -1, 64),
			strconv.FormatFloat(s.MaxPossibleScore, 'f', -1, 64),
			fmt.Sprintf("%.1f%%", s.DisplayPercentage()),
			strconv.Itoa(s.ScoreCount),
		})
	}
	table.Render()
}

func renderStatus(w io.Writer, st *scoring.CertificationStatus) {
	color.New(color.FgYellow).Fprintf(w, "\nCertification: %s\n", st.Stage)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Step", "Signed By", "Revision", "State"})
	table.Append([]string{
		"Judges",
		fmt.Sprintf("%d certifications", len(st.JudgeCertifications)),
		"-",
		pendingOrDone(len(st.MissingJudgeCertifications) == 0, fmt.Sprintf("%d missing", len(st.MissingJudgeCertifications))),
	})
	if st.Tally != nil {
		table.Append([]string{"Tally", st.Tally.SignatureName, strconv.Itoa(st.Tally.Revision), staleOrCurrent(st.TallyStale)})
	} else {
		table.Append([]string{"Tally", "-", "-", "pending"})
	}
	if st.Audit != nil {
		table.Append([]string{"Audit", st.Audit.SignatureName, strconv.Itoa(st.Audit.Revision), staleOrCurrent(st.AuditStale)})
	} else {
		table.Append([]string{"Audit", "-", "-", "pending"})
	}
	table.Render()

	if len(st.RemovedJudges) > 0 {
		ids := make([]string, len(st.RemovedJudges))
		for i, j := range st.RemovedJudges {
			ids[i] = strconv.FormatInt(j, 10)
		}
		fmt.Fprintf(w, "Judges removed: %s\n", strings.Join(ids, ", "))
	}
	switch {
	case st.Final:
		color.New(color.FgGreen).Fprintln(w, "Results are final.")
	case st.RecertificationRequired:
		color.New(color.FgRed).Fprintln(w, "Stale: recertification required.")
	default:
		fmt.Fprintln(w, "Results are not final.")
	}
}

func pendingOrDone(done bool, pending string) string {
	if done {
		return "complete"
	}
	return pending
}

func staleOrCurrent(stale bool) string {
	if stale {
		return "stale"
	}
	return "current"
}
