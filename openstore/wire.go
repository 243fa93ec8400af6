// Package openstore implements the HTTP binding contract between the
// selection orchestrator and third-party store billing services: the
// discovery prober and binder on the client side, and a gin server that
// exposes any Provider under the same contract on the store side.
package openstore

import (
	openbilling "github.com/openbilling/openbilling/go"
)

// ============================================================================
// Wire Types
// ============================================================================
//
// Every billing endpoint responds with a resultPayload; endpoints that carry
// data embed it. Response codes are the shared billing codes.

type nameResponse struct {
	ProviderName string `json:"providerName"`
}

type availableResponse struct {
	BillingAvailable bool `json:"billingAvailable"`
}

type subscriptionsResponse struct {
	Supported bool `json:"supported"`
}

type resultPayload struct {
	Response int    `json:"response"`
	Message  string `json:"message,omitempty"`
}

func toResult(p resultPayload) openbilling.Result {
	return openbilling.NewResult(p.Response, p.Message)
}

func fromResult(r openbilling.Result) resultPayload {
	return resultPayload{Response: r.Response, Message: r.Message}
}

type setupRequest struct {
	Package string `json:"package"`
}

type setupResponse struct {
	Result resultPayload `json:"result"`
}

type inventoryRequest struct {
	Package         string   `json:"package"`
	QuerySkuDetails bool     `json:"querySkuDetails"`
	ItemSkus        []string `json:"itemSkus,omitempty"`
	SubsSkus        []string `json:"subsSkus,omitempty"`
}

type inventoryResponse struct {
	Result     resultPayload           `json:"result"`
	Purchases  []openbilling.Purchase  `json:"purchases,omitempty"`
	SkuDetails []openbilling.SkuDetails `json:"skuDetails,omitempty"`
}

type purchaseRequest struct {
	Package          string `json:"package"`
	Sku              string `json:"sku"`
	ItemType         string `json:"itemType"`
	DeveloperPayload string `json:"developerPayload,omitempty"`
}

type purchaseResponse struct {
	Result   resultPayload         `json:"result"`
	Purchase *openbilling.Purchase `json:"purchase,omitempty"`
}

type consumeRequest struct {
	Package string `json:"package"`
	Sku     string `json:"sku"`
	Token   string `json:"token"`
}

type consumeResponse struct {
	Result resultPayload `json:"result"`
}

type servicesResponse struct {
	Services []openbilling.ServiceDescriptor `json:"services"`
}
