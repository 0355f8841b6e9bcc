package quote

import (
	"errors"
	"strconv"

	"gorm.io/gorm"

	"github.com/quotewise/quotewise/internal/models"
	"github.com/quotewise/quotewise/internal/validation"
)

// ErrNotFound is returned when a quote id does not resolve for the caller.
var ErrNotFound = errors.New("quote not found")

// Service owns quote persistence plus the recompute-on-mutation rule: any
// operation that changes a computation input rewrites the derived fields in
// the same save.
type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service { return &Service{DB: db} }

// CreateInput carries everything needed to build a quote from scratch.
type CreateInput struct {
	UserID             uint
	CustomerName       string
	CustomerAddress    string
	ProductIDs         []int64
	LaborHours         float64
	LaborCostPerHour   float64
	FixedOverheads     float64
	TargetProfitMargin float64
}

// Create validates all fields, resolves the product set against the catalog
// and persists a fully computed quote. Unknown product ids are a validation
// failure here (unlike later recomputes, which tolerate and flag them).
func (s *Service) Create(in CreateInput) (*models.Quote, error) {
	v := validation.Violations{}
	validation.Required("customer_name", in.CustomerName, v)
	validation.PositiveFloat("labor_hours", in.LaborHours, v)
	validation.PositiveFloat("labor_cost_per_hour", in.LaborCostPerHour, v)
	validation.NonNegativeFloat("fixed_overheads", in.FixedOverheads, v)
	validation.NonNegativeFloat("target_profit_margin", in.TargetProfitMargin, v)
	if len(in.ProductIDs) == 0 {
		v["products"] = "required"
	}
	if err := validation.Fail(v); err != nil {
		return nil, err
	}

	products, missing, err := s.resolveProducts(in.ProductIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		v["products"] = "unknown_product_id_" + strconv.FormatInt(missing[0], 10)
		return nil, validation.Fail(v)
	}

	target := in.TargetProfitMargin
	if target == 0 {
		target = DefaultTargetMargin
	}
	q := models.Quote{
		UserID:             in.UserID,
		CustomerName:       in.CustomerName,
		CustomerAddress:    in.CustomerAddress,
		ProductIDs:         in.ProductIDs,
		LaborHours:         in.LaborHours,
		LaborCostPerHour:   in.LaborCostPerHour,
		FixedOverheads:     in.FixedOverheads,
		TargetProfitMargin: target,
	}
	applyBreakdown(&q, Compute(toLines(products), costParamsOf(&q)))
	if err := s.DB.Create(&q).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

// ReviseProducts replaces the quote's product-reference set and recomputes
// derived fields using the quote's existing cost parameters.
func (s *Service) ReviseProducts(userID, quoteID uint, productIDs []int64) (*models.Quote, error) {
	if len(productIDs) == 0 {
		return nil, validation.Fail(validation.Violations{"products": "required"})
	}
	q, err := s.Get(userID, quoteID)
	if err != nil {
		return nil, err
	}
	products, missing, err := s.resolveProducts(productIDs)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, validation.Fail(validation.Violations{"products": "unknown_product_id_" + strconv.FormatInt(missing[0], 10)})
	}
	q.ProductIDs = productIDs
	q.NeedsProductReview = false
	applyBreakdown(q, Compute(toLines(products), costParamsOf(q)))
	if err := s.DB.Save(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

// CostInput carries replacement labor/overhead/target fields.
type CostInput struct {
	LaborHours         float64
	LaborCostPerHour   float64
	FixedOverheads     float64
	TargetProfitMargin float64
}

// ReviseCostParameters replaces the labor/overhead/target fields and
// recomputes using the quote's stored product set. Product ids that have
// since left the catalog are dropped from totals and flag the quote for
// product-set review.
func (s *Service) ReviseCostParameters(userID, quoteID uint, in CostInput) (*models.Quote, error) {
	v := validation.Violations{}
	validation.PositiveFloat("labor_hours", in.LaborHours, v)
	validation.PositiveFloat("labor_cost_per_hour", in.LaborCostPerHour, v)
	validation.NonNegativeFloat("fixed_overheads", in.FixedOverheads, v)
	validation.NonNegativeFloat("target_profit_margin", in.TargetProfitMargin, v)
	if err := validation.Fail(v); err != nil {
		return nil, err
	}
	q, err := s.Get(userID, quoteID)
	if err != nil {
		return nil, err
	}
	products, missing, err := s.resolveProducts(q.ProductIDs)
	if err != nil {
		return nil, err
	}
	q.LaborHours = in.LaborHours
	q.LaborCostPerHour = in.LaborCostPerHour
	q.FixedOverheads = in.FixedOverheads
	q.TargetProfitMargin = in.TargetProfitMargin
	if q.TargetProfitMargin == 0 {
		q.TargetProfitMargin = DefaultTargetMargin
	}
	if len(missing) > 0 {
		q.NeedsProductReview = true
	}
	applyBreakdown(q, Compute(toLines(products), costParamsOf(q)))
	if err := s.DB.Save(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

// ReviseCustomer updates customer identity only; derived financial fields are
// left exactly as they were.
func (s *Service) ReviseCustomer(userID, quoteID uint, name, address string) (*models.Quote, error) {
	v := validation.Violations{}
	validation.Required("customer_name", name, v)
	if err := validation.Fail(v); err != nil {
		return nil, err
	}
	q, err := s.Get(userID, quoteID)
	if err != nil {
		return nil, err
	}
	q.CustomerName = name
	q.CustomerAddress = address
	if err := s.DB.Save(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

// Get loads a quote scoped to its owner.
func (s *Service) Get(userID, quoteID uint) (*models.Quote, error) {
	var q models.Quote
	err := s.DB.Where("id = ? AND user_id = ?", quoteID, userID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// ListForUser returns the caller's quotes, newest first.
func (s *Service) ListForUser(userID uint) ([]models.Quote, error) {
	var quotes []models.Quote
	if err := s.DB.Where("user_id = ?", userID).Order("id desc").Find(&quotes).Error; err != nil {
		return nil, err
	}
	return quotes, nil
}

// Delete removes a quote permanently.
func (s *Service) Delete(userID, quoteID uint) error {
	res := s.DB.Where("id = ? AND user_id = ?", quoteID, userID).Delete(&models.Quote{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Resolve returns the catalog products a quote currently references, in the
// quote's stored order, plus any ids that no longer resolve.
func (s *Service) Resolve(q *models.Quote) ([]models.Product, []int64, error) {
	return s.resolveProducts(q.ProductIDs)
}

func (s *Service) resolveProducts(ids []int64) ([]models.Product, []int64, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	var found []models.Product
	if err := s.DB.Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, nil, err
	}
	byID := make(map[int64]models.Product, len(found))
	for _, p := range found {
		byID[int64(p.ID)] = p
	}
	products := make([]models.Product, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			products = append(products, p)
		} else {
			missing = append(missing, id)
		}
	}
	return products, missing, nil
}

func costParamsOf(q *models.Quote) CostParams {
	return CostParams{
		LaborHours:         q.LaborHours,
		LaborCostPerHour:   q.LaborCostPerHour,
		FixedOverheads:     q.FixedOverheads,
		TargetProfitMargin: q.TargetProfitMargin,
	}
}

func toLines(products []models.Product) []Line {
	lines := make([]Line, len(products))
	for i, p := range products {
		lines[i] = Line{TradePrice: p.TradePrice, RetailPrice: p.RetailPrice}
	}
	return lines
}

func applyBreakdown(q *models.Quote, b Breakdown) {
	q.TotalTradePrice = b.TotalTradePrice
	q.TotalRetailPrice = b.TotalRetailPrice
	q.TotalProfit = b.NetProfit
	q.CalculatedMargin = b.CalculatedMargin
	q.HealthStatus = b.HealthStatus
}
