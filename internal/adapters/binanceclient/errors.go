package binanceclient

import (
	"strings"

	"spotKeeper/internal/ports"
)

// codeNames are the venue's symbolic names for its numeric error codes.
var codeNames = map[int64]string{
	-1000: "UNKNOWN",
	-1001: "DISCONNECTED",
	-1002: "UNAUTHORIZED",
	-1003: "TOO_MANY_REQUESTS",
	-1006: "UNEXPECTED_RESP",
	-1007: "TIMEOUT",
	-1013: "INVALID_MESSAGE",
	-1014: "UNKNOWN_ORDER_COMPOSITION",
	-1015: "TOO_MANY_ORDERS",
	-1016: "SERVICE_SHUTTING_DOWN",
	-1020: "UNSUPPORTED_OPERATION",
	-1021: "INVALID_TIMESTAMP",
	-1022: "INVALID_SIGNATURE",
	-1100: "ILLEGAL_CHARS",
	-1101: "TOO_MANY_PARAMETERS",
	-1102: "MANDATORY_PARAM_EMPTY_OR_MALFORMED",
	-1103: "UNKNOWN_PARAM",
	-1104: "UNREAD_PARAMETERS",
	-1105: "PARAM_EMPTY",
	-1106: "PARAM_NOT_REQUIRED",
	-1112: "NO_DEPTH",
	-1114: "TIF_NOT_REQUIRED",
	-1115: "INVALID_TIF",
	-1116: "INVALID_ORDER_TYPE",
	-1117: "INVALID_SIDE",
	-1118: "EMPTY_NEW_CL_ORD_ID",
	-1119: "EMPTY_ORG_CL_ORD_ID",
	-1120: "BAD_INTERVAL",
	-1121: "BAD_SYMBOL",
	-1125: "INVALID_LISTEN_KEY",
	-1127: "MORE_THAN_XX_HOURS",
	-1128: "OPTIONAL_PARAMS_BAD_COMBO",
	-1130: "INVALID_PARAMETER",
	-2008: "BAD_API_ID",
	-2009: "DUPLICATE_API_KEY_DESC",
	-2010: "NEW_ORDER_REJECTED",
	-2011: "CANCEL_REJECTED",
	-2012: "CANCEL_ALL_FAIL",
	-2013: "NO_SUCH_ORDER",
	-2014: "BAD_API_KEY_FMT",
	-2015: "REJECTED_MBX_KEY",
}

// messageDetails explain the free-text reasons the venue attaches to -1010/-2010/-2011 rejections.
var messageDetails = map[string]string{
	"Unknown order sent.":   "the order could not be found",
	"Duplicate order sent.": "the client order id is already in use",
	"Market is closed.":     "the symbol is not trading",
	"Account has insufficient balance for requested action.":      "not enough funds to complete the action",
	"Stop loss limit orders are not supported for this symbol.":   "STOP_LOSS_LIMIT is not enabled on the symbol",
	"Take profit limit orders are not supported for this symbol.": "TAKE_PROFIT_LIMIT is not enabled on the symbol",
	"Price * QTY is zero or less.":                                "price * quantity is too low",
	"This action disabled is on this account.":                    "some actions have been disabled on the account",
	"Unsupported order combination":                               "the order type, time in force and stop price combination is not allowed",
	"Order would trigger immediately.":                            "the stop price is not valid compared to the last traded price",
	"Cancel order is invalid. Check origClOrdId and orderId.":     "no order id was sent",
	"Filter failure: PRICE_FILTER":                                "price is out of range or not following the tick size",
	"Filter failure: LOT_SIZE":                                    "quantity is out of range or not following the step size",
	"Filter failure: MIN_NOTIONAL":                                "price * quantity is below the minimum order value",
	"Filter failure: NOTIONAL":                                    "price * quantity is outside the allowed order value",
	"Filter failure: MAX_NUM_ORDERS":                              "the account has too many open orders on the symbol",
	"Filter failure: MAX_ALGO_ORDERS":                             "the account has too many open stop or take-profit orders on the symbol",
}

// classify maps a venue error code and message onto a standard error kind.
func classify(code int64, message string) error {
	switch code {
	case -1003, -1015:
		return ports.ErrRateLimited
	case -1001, -1016:
		return ports.ErrExchangeUnavailable
	case -1007, -1021:
		return ports.ErrTimeout
	case -1002, -1022:
		return ports.ErrAuthenticationFailed
	case -2014, -2015:
		return ports.ErrInvalidAPIKeys
	case -1013:
		return ports.ErrInsufficientFunds
	case -2010:
		if isInsufficientBalance(message) {
			return ports.ErrInsufficientFunds
		}
		return ports.ErrOrderPlacementFailed
	case -2011:
		if strings.Contains(message, "Unknown order") {
			return ports.ErrOrderNotFound
		}
		return ports.ErrOrderCancelFailed
	case -2013:
		return ports.ErrOrderNotFound
	case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1114, -1115, -1116, -1117, -1118, -1119, -1120, -1121, -1125, -1127, -1128, -1130:
		return ports.ErrInvalidRequest
	default:
		return ports.ErrUnknown
	}
}

// detail builds the human-readable explanation attached to a VenueError.
func detail(code int64, message string) string {
	parts := make([]string, 0, 2)
	if name, ok := codeNames[code]; ok {
		parts = append(parts, name)
	}
	if d, ok := messageDetails[message]; ok {
		parts = append(parts, d)
	}
	return strings.Join(parts, ": ")
}

func isInsufficientBalance(message string) bool {
	return strings.Contains(strings.ToLower(message), "insufficient balance")
}
