package builderr

import (
	"strings"

	"mira/internal/model"
)

// codeTable maps known compiler/linter error codes directly to a
// category, per spec.md §4.8: "A code-table first (e.g. E0308 -> Type,
// E0502 -> Borrow, TS2304 -> Undefined, TS2322 -> Type)".
var codeTable = map[string]model.ErrorCategory{
	"E0308": model.CategoryType,
	"E0502": model.CategoryBorrow,
	"E0503": model.CategoryBorrow,
	"E0499": model.CategoryBorrow,
	"E0382": model.CategoryBorrow,
	"E0106": model.CategoryLifetime,
	"E0597": model.CategoryLifetime,
	"E0432": model.CategoryImport,
	"E0433": model.CategoryImport,
	"E0425": model.CategoryUndefined,
	"E0412": model.CategoryUndefined,
	"E0601": model.CategoryUndefined,
	"TS2304": model.CategoryUndefined,
	"TS2322": model.CategoryType,
	"TS2339": model.CategoryType,
	"TS2345": model.CategoryType,
	"TS6133": model.CategoryUnused,
	"TS1005": model.CategorySyntax,
	"TS1109": model.CategorySyntax,
}

// Categorize implements spec.md §4.8's two-stage classification: an exact
// error-code lookup first, falling back to a message-keyword scan when
// the code is absent or unrecognized.
func Categorize(code, message string) model.ErrorCategory {
	if code != "" {
		if cat, ok := codeTable[strings.ToUpper(code)]; ok {
			return cat
		}
	}
	return categorizeByKeyword(message)
}

// categorizeByKeyword is the message-keyword fallback, per spec.md §4.8:
// "borrow|moved -> Borrow, lifetime -> Lifetime, etc." Order matters:
// more specific substrings are checked before the generic "type" catch-all,
// mirroring internal/recall's local categorizeError so the two packages
// agree on classification for the same message text.
func categorizeByKeyword(message string) model.ErrorCategory {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "borrow") || strings.Contains(lower, "moved"):
		return model.CategoryBorrow
	case strings.Contains(lower, "lifetime"):
		return model.CategoryLifetime
	case strings.Contains(lower, "import") || strings.Contains(lower, "module not found") || strings.Contains(lower, "cannot find package"):
		return model.CategoryImport
	case strings.Contains(lower, "undefined") || strings.Contains(lower, "not defined") || strings.Contains(lower, "undeclared") || strings.Contains(lower, "cannot find name"):
		return model.CategoryUndefined
	case strings.Contains(lower, "unused"):
		return model.CategoryUnused
	case strings.Contains(lower, "syntax") || strings.Contains(lower, "unexpected token"):
		return model.CategorySyntax
	case strings.Contains(lower, "assert"):
		return model.CategoryAssertion
	case strings.Contains(lower, "test") && (strings.Contains(lower, "fail") || strings.Contains(lower, "failed")):
		return model.CategoryTestFailure
	case strings.Contains(lower, "type") || strings.Contains(lower, "mismatched"):
		return model.CategoryType
	default:
		return model.CategoryOther
	}
}
