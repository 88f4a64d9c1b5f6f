package problem

import "net/http"

// Representative problem-report codes. Each is registered once here and
// retrieved with Wrap(code, args...) so every call site shares the same
// comment template, retryability, and HTTP status.
var registry = map[string]*Report{
	"e.p.authentication-blocked": New("e.p.authentication-blocked",
		"authentication blocked for DID {1}", false, http.StatusForbidden),
	"e.p.session-mismatch": New("e.p.session-mismatch",
		"signing DID does not match session DID", false, http.StatusForbidden),
	"e.p.session-invalid": New("e.p.session-invalid",
		"session {1} is not valid", false, http.StatusUnauthorized),
	"e.p.access-token-failure": New("e.p.access-token-failure",
		"access token invalid or expired", false, http.StatusUnauthorized),
	"e.m.message-expired": New("e.m.message-expired",
		"message {1} has expired", false, http.StatusGone),
	"e.p.message-unpack": New("e.p.message-unpack",
		"unable to unpack envelope: {1}", false, http.StatusBadRequest),
	"e.p.anonymous-outer-envelope-forbidden": New("e.p.anonymous-outer-envelope-forbidden",
		"anonymous outer envelopes are not accepted by this mediator", false, http.StatusForbidden),
	"e.p.access-list-denied": New("e.p.access-list-denied",
		"{1} is not permitted to message {2}", false, http.StatusForbidden),
	"e.p.receive-forwarded-denied": New("e.p.receive-forwarded-denied",
		"{1} does not accept forwarded messages", false, http.StatusForbidden),
	"e.p.receive-anon-denied": New("e.p.receive-anon-denied",
		"{1} does not accept anonymous messages", false, http.StatusForbidden),
	"e.m.queue-limit-sender": New("e.m.queue-limit-sender",
		"sender {1} send-queue is at capacity", true, http.StatusTooManyRequests),
	"e.m.queue-limit-recipient": New("e.m.queue-limit-recipient",
		"recipient {1} receive-queue is at capacity", true, http.StatusTooManyRequests),
	"e.p.forwarding-queue-saturated": New("e.p.forwarding-queue-saturated",
		"forwarding work queue is full", true, http.StatusServiceUnavailable),
	"e.p.forwarding-next-is-self": New("e.p.forwarding-next-is-self",
		"forward next-hop resolves to this mediator", false, http.StatusBadRequest),
	"e.p.direct-delivery-denied": New("e.p.direct-delivery-denied",
		"direct local delivery is disabled", false, http.StatusForbidden),
	"e.p.direct-delivery-recipient-unknown": New("e.p.direct-delivery-recipient-unknown",
		"recipient {1} is not known to this mediator", false, http.StatusNotFound),
	"e.p.ephemeral-header-invalid": New("e.p.ephemeral-header-invalid",
		"ephemeral header must be a JSON boolean", false, http.StatusBadRequest),
	"e.p.admin-add-limit": New("e.p.admin-add-limit",
		"access list is full, entry truncated", false, http.StatusBadRequest),
	"e.p.admin-strip-limit": New("e.p.admin-strip-limit",
		"cannot demote the last remaining admin", false, http.StatusConflict),
	"e.p.account-remove-protected": New("e.p.account-remove-protected",
		"account {1} is protected and cannot be removed", false, http.StatusForbidden),
	"w.p.return-route-missing": New("w.p.return-route-missing",
		"pickup messages must carry return_route: all", false, http.StatusBadRequest),
	"e.p.size-limit": New("e.p.size-limit",
		"envelope exceeds the configured byte limit", false, http.StatusRequestEntityTooLarge),
	"e.p.recipient-limit": New("e.p.recipient-limit",
		"recipient or key count exceeds the configured limit", false, http.StatusBadRequest),
}
