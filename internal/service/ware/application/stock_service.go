package application

import (
	"context"
	"time"

	"nexus-ware/internal/pkg/logger"
	"nexus-ware/internal/service/ware/domain"
	"nexus-ware/internal/service/ware/domain/port"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const catalogLookupTimeout = 2 * time.Second

// StockService 提供入库、有货查询和台账/工作单查询
type StockService struct {
	ledger  domain.Ledger
	journal domain.Journal
	catalog port.CatalogService
	tracer  trace.Tracer
}

func NewStockService(ledger domain.Ledger, journal domain.Journal, catalog port.CatalogService, tracer trace.Tracer) *StockService {
	return &StockService{ledger: ledger, journal: journal, catalog: catalog, tracer: tracer}
}

// AddStock 入库。新建台账时尽力从商品服务补全 SKU 名称，查询失败不影响入库。
func (s *StockService) AddStock(ctx context.Context, skuID, wareID int64, count int) error {
	ctx, span := s.tracer.Start(ctx, "app.AddStock", trace.WithAttributes(
		attribute.Int64("sku.id", skuID),
		attribute.Int64("ware.id", wareID),
		attribute.Int("sku.num", count),
	))
	defer span.End()

	if skuID <= 0 || wareID <= 0 || count <= 0 {
		return domain.ErrInvalidStockIntake
	}

	exists, err := s.ledger.Exists(ctx, skuID, wareID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	skuName := ""
	if !exists && s.catalog != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, catalogLookupTimeout)
		name, err := s.catalog.GetSkuName(lookupCtx, skuID)
		cancel()
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Int64("sku_id", skuID).Msg("Catalog lookup failed, storing stock without sku name")
		} else {
			skuName = name
		}
	}

	if err := s.ledger.AddStock(ctx, skuID, wareID, count, skuName); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetSkusHasStock 批量查询 SKU 是否有货，结果顺序与输入一致
func (s *StockService) GetSkusHasStock(ctx context.Context, skuIDs []int64) ([]domain.SkuStock, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetSkusHasStock", trace.WithAttributes(attribute.Int("sku.count", len(skuIDs))))
	defer span.End()

	out := make([]domain.SkuStock, len(skuIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, skuID := range skuIDs {
		i, skuID := i, skuID
		g.Go(func() error {
			has, err := s.ledger.HasStock(gctx, skuID)
			if err != nil {
				return err
			}
			out[i] = domain.SkuStock{SkuID: skuID, HasStock: has}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

// ListInventory 分页查询台账
func (s *StockService) ListInventory(ctx context.Context, filter domain.InventoryFilter, page domain.PageQuery) (*domain.InventoryPage, error) {
	return s.ledger.List(ctx, filter, page)
}

// GetWorkOrder 返回订单最近一次的工作单及其全部明细
func (s *StockService) GetWorkOrder(ctx context.Context, orderSn string) (*domain.WorkOrderView, error) {
	wo, err := s.journal.GetWorkOrderByOrderSn(ctx, orderSn)
	if err != nil {
		return nil, err
	}
	details, err := s.journal.ListDetails(ctx, wo.ID)
	if err != nil {
		return nil, err
	}
	return &domain.WorkOrderView{WorkOrder: *wo, Details: details}, nil
}
