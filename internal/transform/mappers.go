package transform

import (
	"fmt"
	"regexp"
	"strings"

	"mtbridge/internal/message"
)

// mt103Required / mt202Required are the tags a message must carry before
// mapping proceeds. 20 is the sender's reference, 32A the value date,
// currency and amount.
var (
	mt103Required = []string{"20", "32A"}
	mt202Required = []string{"20", "32A"}
)

// mapMT103ToMT202 converts a customer credit transfer into a financial
// institution transfer. The ordering institution (52A) is derived from the
// ordering customer (50K) when absent, and the beneficiary institution (58A)
// from the beneficiary customer (59); both derivations downgrade the result
// to PARTIAL_SUCCESS.
func mapMT103ToMT202(input string) Result {
	block, ok := textBlock(input)
	if !ok {
		return Result{
			Status: message.StatusParseError,
			Error:  "no text block found between {4: and -}",
		}
	}
	in := parseFields(block)
	for _, tag := range mt103Required {
		if _, present := in[tag]; !present {
			return validationError(tag)
		}
	}

	out := map[string]string{
		"20":  in["20"],
		"21":  "NONREF",
		"32A": in["32A"],
	}
	if ref, present := in["21"]; present {
		out["21"] = ref
	}

	var warnings []string
	if inst, present := in["52A"]; present {
		out["52A"] = inst
	} else if customer, present := in["50K"]; present {
		if derived := deriveInstitution(customer); derived != "" {
			out["52A"] = derived
			warnings = append(warnings, fmt.Sprintf(
				"derived ordering institution :52A: %q from ordering customer :50K:", derived))
		}
	}
	if inst, present := in["58A"]; present {
		out["58A"] = inst
	} else if beneficiary, present := in["59"]; present {
		if derived := deriveInstitution(beneficiary); derived != "" {
			out["58A"] = derived
			warnings = append(warnings, fmt.Sprintf(
				"derived beneficiary institution :58A: %q from beneficiary customer :59:", derived))
		}
	}

	rendered := renderBlock([]string{"20", "21", "32A", "52A", "58A"}, out)
	if len(warnings) > 0 {
		return partial(rendered, warnings)
	}
	return success(rendered)
}

// mapMT202ToMT103 is the mirror mapping back to a customer transfer. The
// ordering customer (50K) is derived from the ordering institution (52A)
// and the beneficiary customer (59) from the beneficiary institution (58A)
// when the customer fields have no direct source.
func mapMT202ToMT103(input string) Result {
	block, ok := textBlock(input)
	if !ok {
		return Result{
			Status: message.StatusParseError,
			Error:  "no text block found between {4: and -}",
		}
	}
	in := parseFields(block)
	for _, tag := range mt202Required {
		if _, present := in[tag]; !present {
			return validationError(tag)
		}
	}

	out := map[string]string{
		"20":  in["20"],
		"23B": "CRED",
		"32A": in["32A"],
	}

	var warnings []string
	if customer, present := in["50K"]; present {
		out["50K"] = customer
	} else if inst, present := in["52A"]; present {
		out["50K"] = inst
		warnings = append(warnings, fmt.Sprintf(
			"derived ordering customer :50K: %q from ordering institution :52A:", inst))
	}
	if beneficiary, present := in["59"]; present {
		out["59"] = beneficiary
	} else if inst, present := in["58A"]; present {
		out["59"] = inst
		warnings = append(warnings, fmt.Sprintf(
			"derived beneficiary customer :59: %q from beneficiary institution :58A:", inst))
	}

	rendered := renderBlock([]string{"20", "23B", "32A", "50K", "59"}, out)
	if len(warnings) > 0 {
		return partial(rendered, warnings)
	}
	return success(rendered)
}

// enrichMarker is appended as tag 199 (free-format message) so downstream
// systems can tell an enriched copy from the original.
const enrichMarker = "MTBRIDGE-ENRICHED"

// mapEnrich appends the fixed marker field inside the text block when one
// exists, otherwise at the end of the message. Enrichment is always
// PARTIAL_SUCCESS: the payload no longer matches what the sender signed off.
func mapEnrich(input string) Result {
	marker := ":199:" + enrichMarker
	var output string
	if idx := strings.LastIndex(input, blockEnd); idx >= 0 {
		output = input[:idx] + marker + "\n" + input[idx:]
	} else {
		output = strings.TrimRight(input, "\n") + "\n" + marker
	}
	return partial(output, []string{"appended enrichment marker field :199:"})
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{2,}`)
)

// mapNormalize collapses runs of whitespace and blank lines. There is
// nothing to validate, so the result is always SUCCESS.
func mapNormalize(input string) Result {
	output := spaceRuns.ReplaceAllString(input, " ")
	output = newlineRuns.ReplaceAllString(output, "\n")
	return success(strings.TrimSpace(output))
}
