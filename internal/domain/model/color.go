package model

// 商品の色（マスタ）。hexは #RRGGBB
type Color struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string `gorm:"type:varchar(50);not null;uniqueIndex" json:"name"`
	HexCode string `gorm:"type:varchar(7);not null" json:"hex_code"`
}
