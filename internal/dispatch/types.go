// Package dispatch implements the protocol dispatcher: a message type
// URI -> handler map, the same closed-registry idiom as a name -> Command
// table.
package dispatch

import "encoding/json"

// Message is the plaintext DIDComm message envelope every handler
// operates on, extracted from envelope.Inner.Body by Dispatch before
// routing.
type Message struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	From        string          `json:"from,omitempty"`
	To          []string        `json:"to,omitempty"`
	ThID        string          `json:"thid,omitempty"`
	CreatedTime int64           `json:"created_time,omitempty"`
	ReturnRoute string          `json:"return_route,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Normative DIDComm message type URIs the dispatcher routes on.
const (
	TypeTrustPing         = "https://didcomm.org/trust-ping/2.0/ping"
	TypeTrustPingResponse = "https://didcomm.org/trust-ping/2.0/ping-response"

	TypeRoutingForward = "https://didcomm.org/routing/2.0/forward"

	TypePickupStatusRequest      = "https://didcomm.org/messagepickup/3.0/status-request"
	TypePickupStatus             = "https://didcomm.org/messagepickup/3.0/status"
	TypePickupLiveDeliveryChange = "https://didcomm.org/messagepickup/3.0/live-delivery-change"
	TypePickupDeliveryRequest    = "https://didcomm.org/messagepickup/3.0/delivery-request"
	TypePickupDelivery           = "https://didcomm.org/messagepickup/3.0/delivery"
	TypePickupMessagesReceived   = "https://didcomm.org/messagepickup/3.0/messages-received"

	TypeMediatorAdminManagement   = "https://didcomm.org/mediator-admin/1.0/admin-management"
	TypeMediatorAccountManagement = "https://didcomm.org/mediator-accounts/1.0/account-management"
	TypeMediatorACLManagement     = "https://didcomm.org/mediator-acl/1.0/acl-management"
	// TypeMediatorACLManagementResponse lives under an Affinidi-specific
	// namespace distinct from the request type. It is a fixed constant;
	// no configuration setting changes it.
	TypeMediatorACLManagementResponse = "https://affinidi.com/atm/1.0/acl-management-response"

	TypeProblemReport = "https://didcomm.org/report-problem/2.0/problem-report"
)
