package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"estate_wizard_v1_202609/internal/model"
)

// ==================== 校验规则 ====================

// 邮箱与电话格式
// 电话接受国际区号（+86 xxx）或本地前缀 0 开头，后续 8-10 位数字，允许空格分隔
var (
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	phonePattern = regexp.MustCompile(`^(\+[0-9]{1,3}|0)( ?[0-9]){8,10}$`)
)

// fieldSteps 字段归属的步骤（单字段校验时反查）
var fieldSteps = map[string]int{
	"title":         model.StepGeneral,
	"description":   model.StepGeneral,
	"category":      model.StepGeneral,
	"bedrooms":      model.StepGeneral,
	"bathrooms":     model.StepGeneral,
	"area":          model.StepGeneral,
	"city":          model.StepLocation,
	"district":      model.StepLocation,
	"address":       model.StepLocation,
	"price":         model.StepPricing,
	"price_kind":    model.StepPricing,
	"contact_name":  model.StepPricing,
	"contact_email": model.StepPricing,
	"contact_phone": model.StepPricing,
}

// ==================== FieldValidator ====================

// FieldValidator 分步表单校验器
// 纯函数，无副作用；图片数量校验需要外部传入当前图片数
type FieldValidator struct {
	minImages int
	maxImages int
}

// NewFieldValidator 创建校验器
func NewFieldValidator(minImages, maxImages int) *FieldValidator {
	return &FieldValidator{minImages: minImages, maxImages: maxImages}
}

// ValidateStep 校验指定步骤，返回 字段->错误信息
// 照片步骤依赖 imageCount；其余步骤只读草稿
func (v *FieldValidator) ValidateStep(step int, d *model.ListingDraft, imageCount int) map[string]string {
	errs := make(map[string]string)

	switch step {
	case model.StepGeneral:
		v.validateGeneral(d, errs)
	case model.StepLocation:
		v.validateLocation(d, errs)
	case model.StepPhotos:
		v.validatePhotos(imageCount, errs)
	case model.StepPricing:
		v.validatePricing(d, errs)
	case model.StepReview:
		// 预览步骤不做独立校验，只汇总展示
	}

	return errs
}

// ValidateAll 全量校验（提交前最后一道关口）
func (v *FieldValidator) ValidateAll(d *model.ListingDraft, imageCount int) map[string]string {
	errs := make(map[string]string)
	for step := 0; step < model.StepCount; step++ {
		for field, msg := range v.ValidateStep(step, d, imageCount) {
			errs[field] = msg
		}
	}
	return errs
}

// ValidateField 单字段校验（失焦反馈用），字段合法且通过时返回空串
func (v *FieldValidator) ValidateField(field string, d *model.ListingDraft, imageCount int) string {
	step, ok := fieldSteps[field]
	if !ok {
		return ""
	}
	return v.ValidateStep(step, d, imageCount)[field]
}

// ==================== 分步规则 ====================

func (v *FieldValidator) validateGeneral(d *model.ListingDraft, errs map[string]string) {
	// 长度按字符数计，不按字节数
	title := utf8.RuneCountInString(strings.TrimSpace(d.Title))
	if title < 5 {
		errs["title"] = "标题至少 5 个字符"
	} else if title > 100 {
		errs["title"] = "标题不能超过 100 个字符"
	}

	desc := utf8.RuneCountInString(strings.TrimSpace(d.Description))
	if desc < 20 {
		errs["description"] = "描述至少 20 个字符"
	} else if desc > 2000 {
		errs["description"] = "描述不能超过 2000 个字符"
	}

	if !model.IsValidCategory(d.Category) {
		errs["category"] = "请选择房源类别"
	}

	if d.Bedrooms < 0 {
		errs["bedrooms"] = "卧室数不能为负"
	}
	if d.Bathrooms < 0 {
		errs["bathrooms"] = "卫浴数不能为负"
	}
	if d.Area <= 0 {
		errs["area"] = "建筑面积必须大于 0"
	}
}

func (v *FieldValidator) validateLocation(d *model.ListingDraft, errs map[string]string) {
	if strings.TrimSpace(d.City) == "" {
		errs["city"] = "请选择城市"
	}
	if strings.TrimSpace(d.District) == "" {
		errs["district"] = "请选择区域"
	}
	if utf8.RuneCountInString(strings.TrimSpace(d.Address)) < 5 {
		errs["address"] = "街道地址至少 5 个字符"
	}
}

func (v *FieldValidator) validatePhotos(imageCount int, errs map[string]string) {
	if imageCount < v.minImages {
		errs["images"] = "请至少上传 1 张图片"
	} else if imageCount > v.maxImages {
		// 添加时已截断，这里兜底复查
		errs["images"] = "图片数量超出上限"
	}
}

func (v *FieldValidator) validatePricing(d *model.ListingDraft, errs map[string]string) {
	if d.Price <= 0 {
		errs["price"] = "价格必须大于 0"
	}
	if d.PriceKind != model.PriceKindSale && d.PriceKind != model.PriceKindRent {
		errs["price_kind"] = "请选择售卖类型"
	}
	if utf8.RuneCountInString(strings.TrimSpace(d.ContactName)) < 2 {
		errs["contact_name"] = "联系人姓名至少 2 个字符"
	}
	if !emailPattern.MatchString(strings.TrimSpace(d.ContactEmail)) {
		errs["contact_email"] = "邮箱格式不正确"
	}
	phone := strings.TrimSpace(d.ContactPhone)
	if phone == "" || !phonePattern.MatchString(phone) {
		errs["contact_phone"] = "电话格式不正确"
	}
}
