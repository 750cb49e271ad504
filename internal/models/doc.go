// Package models defines the core domain models for splitledger.
//
// # Ledger Models
//
//   - Receipt: an ingested purchase event with its normalized line items
//   - ManualExpense: a hand-entered obligation backed by one synthetic line item
//   - LineItem: one priced product line, owned by a Receipt or a ManualExpense
//   - Share / StaticShare: percentage obligations per participant
//   - Settlement / SettlementItem: finalized transfers and what they closed
//   - Participant: one of the two primary participants or the excluded "Other"
//
// # Design Principles
//
// 1. **Money is decimal**: amounts use shopspring/decimal, rounded to 2 places;
// quantities keep 3 places
// 2. **Exclusive ownership is structural**: OwnerRef can only be built as a receipt
// reference or a manual expense reference, never both
// 3. **Avoid circular references**: use ID strings instead of pointers for relationships
// 4. **Flags, not deletes**: receipts and expenses are flagged counted/settled, never removed
package models
