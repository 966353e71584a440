package models

// MovementKind classifies why a ledger entry exists.
type MovementKind string

const (
	MovementKindReceipt     MovementKind = "receipt"
	MovementKindShipment    MovementKind = "shipment"
	MovementKindAdjustment  MovementKind = "adjustment"
	MovementKindCountPosted MovementKind = "count_posted"
	MovementKindTransferIn  MovementKind = "transfer_in"
	MovementKindTransferOut MovementKind = "transfer_out"
)

// Reconciliation report check types.
const (
	CheckTypeBalanceDrift  = "BALANCE_DRIFT"
	CheckTypeOrphanBalance = "ORPHAN_BALANCE"
)
