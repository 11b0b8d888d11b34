package model

type Material string

const (
	MaterialCotton    Material = "COTTON"
	MaterialLinen     Material = "LINEN"
	MaterialWool      Material = "WOOL"
	MaterialSilk      Material = "SILK"
	MaterialPolyester Material = "POLYESTER"
	MaterialLeather   Material = "LEATHER"
	MaterialWood      Material = "WOOD"
	MaterialMetal     Material = "METAL"
	MaterialPaper     Material = "PAPER"
	MaterialOther     Material = "OTHER"
)

var materials = []Material{
	MaterialCotton, MaterialLinen, MaterialWool, MaterialSilk, MaterialPolyester,
	MaterialLeather, MaterialWood, MaterialMetal, MaterialPaper, MaterialOther,
}

// 選択肢一覧（表示順）
func Materials() []Material {
	out := make([]Material, len(materials))
	copy(out, materials)
	return out
}

func (m Material) Valid() bool {
	for _, v := range materials {
		if v == m {
			return true
		}
	}
	return false
}

// 商品の素材構成（綿60%など）。商品を消すと一緒に消える
type ProductMaterial struct {
	ID         int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID  int64    `gorm:"not null;uniqueIndex:idx_product_materials_product_material" json:"product_id"`
	Material   Material `gorm:"type:varchar(20);not null;uniqueIndex:idx_product_materials_product_material" json:"material"`
	Percentage int      `gorm:"not null" json:"percentage"`
}
