package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cuongbtq/paid-agent/internal/purchase"
	"github.com/cuongbtq/paid-agent/internal/purchase/domain"
	"github.com/mattn/go-isatty"
)

const (
	bold   = "\033[1m"
	red    = "\033[91m"
	green  = "\033[92m"
	yellow = "\033[93m"
	blue   = "\033[94m"
	cyan   = "\033[96m"
	reset  = "\033[0m"
)

const ruleWidth = 70

// Endpoints describes where a run talks to, for display
type Endpoints struct {
	AgentURL   string
	PaymentURL string
	Network    string
}

// Reporter renders human-readable run output
type Reporter struct {
	w     io.Writer
	color bool
	now   func() time.Time
}

// New creates a reporter. Colour is enabled only when w is a terminal.
func New(w io.Writer) *Reporter {
	return &Reporter{
		w:     w,
		color: isTerminal(w),
		now:   time.Now,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// ExplorerURL links a transaction or contract id on the network's explorer
func ExplorerURL(network, id string) string {
	if network == "Preprod" {
		return "https://preprod.cardanoscan.io/transaction/" + id
	}
	return "https://cardanoscan.io/transaction/" + id
}

// Intro prints where the run is pointed at
func (r *Reporter) Intro(e Endpoints) {
	r.header("PAID AGENT PURCHASE")
	r.info("Service URL: %s", e.AgentURL)
	r.info("Payment Service: %s", e.PaymentURL)
	r.info("Network: %s", e.Network)
	r.info("Timestamp: %s", r.now().Format("2006-01-02 15:04:05"))
}

// SetupGuide explains how to obtain a purchaser credential
func (r *Reporter) SetupGuide(e Endpoints, adminToken string) {
	if adminToken == "" {
		adminToken = "<PAYMENT_API_KEY>"
	}

	r.header("SETUP REQUIRED: Purchaser Wallet Configuration")
	r.warn("You need to set up a purchaser wallet first!")
	r.line("")
	r.line("%s", r.paint(bold, "Follow these steps:"))
	r.line("")
	r.line("1. Get test ADA from the faucet:")
	r.line("   https://docs.cardano.org/cardano-testnets/tools/faucet")
	r.line("   OR https://dispenser.masumi.network/")
	r.line("")
	r.line("2. Register your wallet as a purchaser:")
	r.line("   curl -X POST '%s/wallet' \\", e.PaymentURL)
	r.line("     -H 'token: %s' \\", adminToken)
	r.line("     -H 'Content-Type: application/json' \\")
	r.line("     -d '{")
	r.line(`       "name": "My Purchaser Wallet",`)
	r.line(`       "type": "purchasing",`)
	r.line(`       "network": "%s"`, e.Network)
	r.line("     }'")
	r.line("")
	r.line("3. Get the wallet details:")
	r.line("   curl -X GET '%s/wallet' \\", e.PaymentURL)
	r.line("     -H 'token: %s'", adminToken)
	r.line("")
	r.line("4. Create an API key for your purchaser wallet:")
	r.line("   curl -X POST '%s/api-key' \\", e.PaymentURL)
	r.line("     -H 'token: %s' \\", adminToken)
	r.line("     -H 'Content-Type: application/json' \\")
	r.line("     -d '{")
	r.line(`       "name": "Purchaser Key",`)
	r.line(`       "walletId": "YOUR_PURCHASER_WALLET_ID"`)
	r.line("     }'")
	r.line("")
	r.line("5. Add to your .env file:")
	r.line("   PURCHASER_API_KEY=your_purchaser_api_key")
	r.line("")
}

// Failure prints the diagnostics of an aborted run
func (r *Reporter) Failure(summary *purchase.Summary, err error) {
	stage := domain.Stage("")
	if summary != nil {
		stage = summary.FailedStage
	}

	var stageErr *domain.StageError
	if errors.As(err, &stageErr) && stage == "" {
		stage = stageErr.Stage
	}

	if stage != "" {
		r.header(fmt.Sprintf("FAILED at stage: %s", stage))
	} else {
		r.header("FAILED")
	}
	r.fail("%v", err)

	if stageErr != nil && stageErr.Body != "" {
		r.fail("Response: %s", stageErr.Body)
	}

	var cv *domain.ContractViolationError
	if errors.As(err, &cv) && len(cv.Fields) > 0 {
		r.fail("Offending fields: %s", strings.Join(cv.Fields, ", "))
	}

	hint := domain.HintFor(err)
	if stageErr != nil && stageErr.Hint != "" {
		hint = stageErr.Hint
	}
	if hint != "" {
		r.line("")
		r.warn("%s", hint)
	}

	if errors.Is(err, domain.ErrPaymentRejected) {
		r.warn("Possible issues:")
		r.line("  - Insufficient test ADA in wallet")
		r.line("  - Wallet not registered properly")
		r.line("  - Invalid API key")
	}

	if summary != nil && summary.Job.JobID != "" {
		r.line("")
		r.info("Job: %s", summary.Job.JobID)
		r.info("Contract: %s", ExplorerURL(summary.Network, summary.Job.BlockchainIdentifier))
	}
	r.line("")
}

// Summary prints the final report of a run that reached monitoring
func (r *Reporter) Summary(s *purchase.Summary) {
	r.header("Transaction Summary")

	r.success("Job Created: %s", s.Job.JobID)
	r.success("Blockchain Contract: %s", s.Job.BlockchainIdentifier)
	r.success("Payment: %s ADA (%s lovelace)", s.AmountDisplay, s.AmountLovelace)
	r.info("Contract on explorer: %s", ExplorerURL(s.Network, s.Job.BlockchainIdentifier))

	if s.Receipt != nil {
		if s.Receipt.TxHash != "" {
			r.success("Transaction Hash: %s", s.Receipt.TxHash)
			r.info("View on Cardano Explorer: %s", ExplorerURL(s.Network, s.Receipt.TxHash))
		} else {
			r.warn("Payment accepted, transaction hash not reported yet")
		}
	}

	if s.Monitor != nil {
		r.line("")
		r.line("%s", r.paint(bold, "STATUS HISTORY:"))
		for _, t := range s.Monitor.Transitions {
			r.line("[%ds] Job: %s | Payment: %s",
				int(t.Elapsed/time.Second), r.paint(yellow, t.JobStatus), r.paint(yellow, t.PaymentStatus))
		}
		r.line("  polls: %d, missed: %d, elapsed: %s", s.Monitor.Polls, s.Monitor.Misses, s.Monitor.Elapsed.Round(time.Second))
		r.line("")
		r.outcome(s.Monitor)
	}

	r.line("")
	r.line("%s", r.paint(bold, "BLOCKCHAIN VERIFICATION:"))
	r.line("  • Network: Cardano %s", s.Network)
	r.line("  • Smart Contract: %s", short(s.Job.BlockchainIdentifier))
	r.line("  • Amount: %s ADA", s.AmountDisplay)
	if s.Receipt != nil && s.Receipt.TxHash != "" {
		r.line("  • Transaction: %s", short(s.Receipt.TxHash))
	}
	r.line("")
}

func (r *Reporter) outcome(m *purchase.MonitorResult) {
	switch m.Outcome {
	case domain.OutcomeCompleted:
		r.line("%s", r.paint(green+bold, "✓ SERVICE COMPLETED!"))
		if m.Final != nil && m.Final.HasResult() {
			r.line("")
			r.line("%s", r.paint(cyan, m.Final.ResultText()))
		}
	case domain.OutcomeFailed:
		r.fail("Service execution failed!")
		if m.Final != nil && len(m.Final.Raw) > 0 {
			r.line("%s", indentJSON(m.Final.Raw))
		}
	case domain.OutcomeTimedOut:
		r.warn("Monitoring window elapsed before the job finished; outcome unknown")
		if m.Final != nil {
			r.warn("Last observed status: %s", m.Final.Status)
		}
	}
}

func (r *Reporter) header(text string) {
	rule := strings.Repeat("=", ruleWidth)
	r.line("")
	r.line("%s", r.paint(bold+blue, rule))
	r.line("%s", r.paint(bold+blue, text))
	r.line("%s", r.paint(bold+blue, rule))
	r.line("")
}

func (r *Reporter) success(format string, args ...any) {
	r.line("%s", r.paint(green, "✓ "+fmt.Sprintf(format, args...)))
}

func (r *Reporter) info(format string, args ...any) {
	r.line("%s", r.paint(cyan, "ℹ "+fmt.Sprintf(format, args...)))
}

func (r *Reporter) warn(format string, args ...any) {
	r.line("%s", r.paint(yellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func (r *Reporter) fail(format string, args ...any) {
	r.line("%s", r.paint(red, "✗ "+fmt.Sprintf(format, args...)))
}

func (r *Reporter) line(format string, args ...any) {
	fmt.Fprintf(r.w, format+"\n", args...)
}

func (r *Reporter) paint(code, text string) string {
	if !r.color {
		return text
	}
	return code + text + reset
}

func short(id string) string {
	if len(id) <= 32 {
		return id
	}
	return id[:32] + "..."
}

func indentJSON(raw []byte) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
