package pipeline

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andresmejia3/biogate/internal/features"
	"github.com/andresmejia3/biogate/internal/model"
	"github.com/andresmejia3/biogate/internal/types"
)

var rule = strings.Repeat("=", 60)

// Header prints the transaction banner.
func Header(w io.Writer, req Request) {
	name := req.Scenario
	if name == "" {
		name = "Custom Test"
	}
	fmt.Fprintf(w, "\n%s\n🔐 TRANSACTION: %s\n%s\n", rule, name, rule)
	fmt.Fprintf(w, "Face: %s\n", req.Face)
	fmt.Fprintf(w, "Voice: %s\n\n", req.Voice)
}

// Report prints the result block of a finished transaction.
func Report(w io.Writer, tx Transaction) {
	fmt.Fprintf(w, "[FACE] %s\n", verdict(tx.FacePassed, tx.Face, "face"))
	fmt.Fprintf(w, "[VOICE] %s\n", verdict(tx.VoicePassed, tx.Voice, "voice"))

	fmt.Fprintln(w, "\nAuthentication Results:")
	fmt.Fprintf(w, "Face Authentication: %s\n", passFail(tx.FacePassed))
	fmt.Fprintf(w, "Voice Authentication: %s\n", passFail(tx.VoicePassed))

	if !tx.Decision.Authorized {
		fmt.Fprintln(w, "\n❌ AUTHENTICATION FAILED")
		fmt.Fprintf(w, "Reason: %s\n", ReasonText(tx.Decision.Reason))
		return
	}

	fmt.Fprintln(w, "\n✅ AUTHENTICATION SUCCESS")
	fmt.Fprintf(w, "Authenticated User: %s\n", strings.ToUpper(string(tx.Decision.Identity)))

	fmt.Fprintln(w, "\n📦 Product Recommendation:")
	if tx.Recommendation != nil {
		fmt.Fprintf(w, "Recommended: %s Product\n", tx.Recommendation.Category)
	} else {
		fmt.Fprintf(w, "⚠️  No recommendation available: %s\n", tx.RecommendationErr)
	}
}

// ReportError prints a transaction that could not run to completion.
func ReportError(w io.Writer, err error) {
	switch {
	case errors.Is(err, features.ErrNotFound):
		fmt.Fprintf(w, "❌ File not found: %v\n", err)
	case errors.Is(err, model.ErrShapeMismatch):
		fmt.Fprintf(w, "⚠️  Configuration error: %v\n", err)
	default:
		fmt.Fprintf(w, "❌ Error: %v\n", err)
	}
}

// ReasonText is the human form of a gate reason.
func ReasonText(r types.Reason) string {
	switch r {
	case types.ReasonFaceRejected:
		return "Face not recognized as an authorized user"
	case types.ReasonVoiceRejected:
		return "Voice not recognized as an authorized user"
	case types.ReasonIdentityMismatch:
		return "Face and voice belong to different users"
	case types.ReasonApproved:
		return "Approved"
	}
	return string(r)
}

func verdict(ok bool, r types.ClassificationResult, kind string) string {
	if ok {
		return fmt.Sprintf("✅ Authorized user: %s (confidence %.2f)", strings.ToUpper(string(r.Label)), r.Confidence)
	}
	return fmt.Sprintf("❌ Unauthorized %s (best match %s, confidence %.2f)", kind, r.Label, r.Confidence)
}

func passFail(ok bool) string {
	if ok {
		return "✅ PASS"
	}
	return "❌ FAIL"
}
