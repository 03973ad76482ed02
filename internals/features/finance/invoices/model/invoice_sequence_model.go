package model

// InvoiceSequence keeps the last issued number per prefix (e.g. INV-2026).
type InvoiceSequence struct {
	SeqKey    string `gorm:"column:seq_key;type:varchar(32);primaryKey"`
	LastValue int64  `gorm:"column:last_value;not null"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }
