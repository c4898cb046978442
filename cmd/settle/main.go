/*
main.go - Apply a customer payment through a remote TrackPay API

PURPOSE:
  Plans the allocation locally and writes it purchase by purchase through
  the REST API. When a write fails the applied prefix and the remaining
  steps are printed and the plan is saved to -plan. Rerunning with
  -resume finishes that saved plan instead of planning the payment again,
  so nothing is paid twice.

COMMAND-LINE FLAGS:
  -customer  Customer ID (required)
  -amount    Payment amount, e.g. 120 or 1,250.00 (required unless -resume)
  -purchase  Apply to this purchase only instead of oldest first
  -url       API base URL (default: TRACKPAY_API_URL)
  -token     Bearer token (default: TRACKPAY_TOKEN)
  -plan      Where a partially applied plan is saved (default: settle-plan.json)
  -resume    Finish the plan saved in -plan

EXAMPLES:
  ./settle -customer=c-123 -amount=120
  ./settle -customer=c-123 -amount=50 -purchase=p-456
  ./settle -customer=c-123 -resume
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp/trackpay/config"
	"github.com/warp/trackpay/ledger"
	"github.com/warp/trackpay/logger"
	"github.com/warp/trackpay/remote"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	customerID := flag.String("customer", "", "customer ID")
	amount := flag.String("amount", "", "payment amount")
	purchaseID := flag.String("purchase", "", "apply to this purchase only")
	baseURL := flag.String("url", cfg.RemoteURL, "TrackPay API base URL")
	token := flag.String("token", cfg.RemoteToken, "bearer token")
	planPath := flag.String("plan", "settle-plan.json", "file a partially applied plan is saved to")
	resume := flag.Bool("resume", false, "finish the plan saved in -plan")
	flag.Parse()

	logger.SetFormat(cfg.LogFormat)
	logger.SetLevel(cfg.LogLevel)

	if *customerID == "" || (*amount == "" && !*resume) {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := remote.NewClient(*baseURL, remote.NewSession(*token), cfg.HTTPTimeout)
	settler := ledger.NewSettler(client)
	cid := ledger.CustomerID(*customerID)

	var report *ledger.SettlementReport
	if *resume {
		plan, lerr := loadPlan(*planPath)
		if lerr != nil {
			fmt.Fprintf(os.Stderr, "cannot resume: %v\n", lerr)
			os.Exit(2)
		}
		report, err = settler.Resume(ctx, cid, plan)
	} else {
		payment, perr := ledger.ParseMoney(*amount)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "invalid -amount: %v\n", perr)
			os.Exit(2)
		}
		if *purchaseID != "" {
			report, err = settler.SettleOne(ctx, cid, ledger.PurchaseID(*purchaseID), payment)
		} else {
			report, err = settler.Settle(ctx, cid, payment)
		}
	}

	if report != nil {
		printReport(os.Stdout, report)
	}

	var gwErr *ledger.GatewayError
	if errors.As(err, &gwErr) && gwErr.Report != nil && gwErr.Report.Plan != nil {
		if serr := savePlan(*planPath, gwErr.Report.Plan); serr != nil {
			logger.Log.Error().Err(serr).Str("path", *planPath).Msg("Failed to save plan")
		} else {
			fmt.Fprintf(os.Stderr, "plan saved to %s\n", *planPath)
		}
	} else if err == nil && *resume {
		_ = os.Remove(*planPath)
	}

	if err != nil {
		if remote.IsSessionExpired(err) {
			fmt.Fprintln(os.Stderr, "session rejected; set TRACKPAY_TOKEN or -token")
		}
		logger.Log.Error().Err(err).Str("customer_id", *customerID).Msg("Settlement failed")
		os.Exit(1)
	}
}

// loadPlan reads a plan written by savePlan.
func loadPlan(path string) (*ledger.AllocationPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var plan ledger.AllocationPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &plan, nil
}

func savePlan(path string, plan *ledger.AllocationPlan) error {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func printReport(w io.Writer, r *ledger.SettlementReport) {
	fmt.Fprintf(w, "Customer %s\n", r.CustomerID)
	if r.Plan != nil {
		fmt.Fprintf(w, "Payment  %s of %s pending\n", r.Plan.Payment.Grouped(), r.Plan.TotalPending.Grouped())
	}

	for _, step := range r.Applied {
		fmt.Fprintf(w, "  applied   %s  +%s  paid %s  balance %s\n",
			step.PurchaseID, step.Delta.Grouped(), step.NewPaid.Grouped(), step.BalanceAfter.Grouped())
	}
	for _, step := range r.Remaining {
		marker := "pending "
		if r.Failed != nil && r.Failed.PurchaseID == step.PurchaseID {
			marker = "FAILED  "
		}
		fmt.Fprintf(w, "  %s  %s  +%s  paid %s -> %s\n",
			marker, step.PurchaseID, step.Delta.Grouped(), step.PreviousPaid.Grouped(), step.NewPaid.Grouped())
	}

	if r.Complete() {
		fmt.Fprintf(w, "Settled %s\n", r.AppliedAmount().Grouped())
		return
	}
	fmt.Fprintf(w, "Partially applied %s; rerun with -resume to finish\n", r.AppliedAmount().Grouped())
}
