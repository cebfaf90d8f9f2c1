package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/filter"
	"github.com/gymstats/gymstats-hub/internal/domain/overrep"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEARCH PROBLEMS QUERY
// Поиск трасс по текстовому запросу: разбор -> выборка из каталога ->
// фильтр по статусу (top/fail) -> анализ перепредставленности атрибутов
// отфильтрованных трасс относительно всей выборки.
// ══════════════════════════════════════════════════════════════════════════════

const searchNamespace = "search"

// SearchQuery содержит параметры поиска.
type SearchQuery struct {
	// Raw - текст запроса, например "hh = crimps; g > 6a; top".
	Raw string

	// ClimberID - скалолаз, для которого применяются фильтры top/fail.
	// Обязателен только если запрос содержит статус.
	ClimberID shared.ClimberID

	// GymContext - код зала страницы, с которой выполняется поиск.
	// Задаёт шкалу категорий, если в запросе нет условия на зал.
	GymContext string
}

// SearchResult содержит результат поиска.
type SearchResult struct {
	// Problems - найденные трассы, упорядоченные по идентификатору.
	Problems []*climbing.Problem `json:"problems"`

	// Filters - разобранные фильтры.
	Filters *filter.Filters `json:"filters"`

	// Diagnostics - сообщения о непонятых частях запроса.
	Diagnostics []string `json:"diagnostics"`

	// Overrepresented - атрибуты, перепредставленные среди трасс со статусом.
	// Пусто, если статус не запрошен.
	Overrepresented overrep.Result `json:"overrepresented"`
}

// SearchHandler обрабатывает поисковые запросы.
type SearchHandler struct {
	problems climbing.ProblemRepository
	attempts climbing.AttemptRepository
	parser   *filter.Parser
	options  overrep.Options
	cache    Cache
	metrics  Metrics
	logger   *logger.Logger
}

// NewSearchHandler создаёт обработчик. cache может быть nil.
func NewSearchHandler(
	problems climbing.ProblemRepository,
	attempts climbing.AttemptRepository,
	parser *filter.Parser,
	options overrep.Options,
	cache Cache,
	metrics Metrics,
	log *logger.Logger,
) *SearchHandler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SearchHandler{
		problems: problems,
		attempts: attempts,
		parser:   parser,
		options:  options,
		cache:    cache,
		metrics:  metrics,
		logger:   log.With(logger.Component("search")),
	}
}

// Handle выполняет поиск. Ошибки разбора не прерывают поиск и возвращаются
// в Diagnostics.
func (h *SearchHandler) Handle(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	start := time.Now()

	var opts []filter.Option
	if q.GymContext != "" {
		opts = append(opts, filter.WithGymContext(q.GymContext))
	}
	filters, diagnostics := h.parser.Parse(q.Raw, opts...)
	if diagnostics == nil {
		diagnostics = []string{}
	}

	if filters.Status != filter.StatusNone && q.ClimberID.IsEmpty() {
		return nil, shared.NewDomainError("search", "Handle", shared.ErrInvalidInput,
			"status filter requires a climber")
	}

	cacheKey := searchCacheKey(filters, q.ClimberID)
	if cached, ok := h.fromCache(ctx, cacheKey); ok {
		cached.Diagnostics = diagnostics
		h.metrics.ObserveSearch(time.Since(start), diagnostics)
		return cached, nil
	}

	problems, err := h.problems.FindProblems(ctx, BuildPredicate(filters))
	if err != nil {
		return nil, fmt.Errorf("find problems: %w", err)
	}

	result := &SearchResult{
		Problems:        problems,
		Filters:         filters,
		Diagnostics:     diagnostics,
		Overrepresented: overrep.Result{},
	}

	if filters.Status != filter.StatusNone {
		best, err := h.attempts.BestLevels(ctx, q.ClimberID)
		if err != nil {
			return nil, fmt.Errorf("best levels of %s: %w", q.ClimberID, err)
		}
		subset := FilterByStatus(problems, best, filters.Status)
		result.Problems = subset
		result.Overrepresented = overrep.Analyze(
			overrep.CountFacets(problems),
			overrep.CountFacets(subset),
			len(problems), len(subset),
			h.options,
		)
	}

	h.toCache(ctx, cacheKey, result)

	elapsed := time.Since(start)
	h.metrics.ObserveSearch(elapsed, diagnostics)
	h.logger.Debug("search done",
		logger.String("filters", filters.String()),
		logger.Int("problems", len(result.Problems)),
		logger.Int("diagnostics", len(diagnostics)),
		logger.Latency(elapsed),
	)

	return result, nil
}

func (h *SearchHandler) fromCache(ctx context.Context, key string) (*SearchResult, bool) {
	if h.cache == nil {
		return nil, false
	}
	data, ok, err := h.cache.Get(ctx, searchNamespace, key)
	if err != nil {
		h.logger.Warn("search cache read failed", logger.Err(err))
		return nil, false
	}
	h.metrics.CacheResult(searchNamespace, ok)
	if !ok {
		return nil, false
	}
	var res SearchResult
	if err := json.Unmarshal(data, &res); err != nil {
		h.logger.Warn("search cache entry is corrupted", logger.Err(err))
		return nil, false
	}
	if res.Overrepresented == nil {
		res.Overrepresented = overrep.Result{}
	}
	return &res, true
}

func (h *SearchHandler) toCache(ctx context.Context, key string, res *SearchResult) {
	if h.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		h.logger.Warn("search result not cacheable", logger.Err(err))
		return
	}
	if err := h.cache.Set(ctx, searchNamespace, key, data); err != nil {
		h.logger.Warn("search cache write failed", logger.Err(err))
	}
}

// searchCacheKey строится по нормализованным фильтрам, поэтому запросы,
// отличающиеся только записью, делят одну запись кэша.
func searchCacheKey(f *filter.Filters, climber shared.ClimberID) string {
	var sb strings.Builder
	sb.WriteString(f.String())
	if f.Status != filter.StatusNone {
		sb.WriteString("|")
		sb.WriteString(climber.String())
	}
	return sb.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// FILTERS -> PREDICATE
// ══════════════════════════════════════════════════════════════════════════════

// BuildPredicate переводит разобранные фильтры в условие выборки.
// grade, type и gym - дизъюнкция равенств; handhold, footwork и move -
// объединение помеченных трасс, пересечённое с остальными условиями.
// date и статус здесь не участвуют.
func BuildPredicate(f *filter.Filters) climbing.ProblemPredicate {
	var pred climbing.ProblemPredicate

	scalar := []struct {
		key   filter.Key
		field climbing.Field
	}{
		{filter.KeyGrade, climbing.FieldGrade},
		{filter.KeyType, climbing.FieldType},
		{filter.KeyGym, climbing.FieldGym},
	}
	for _, s := range scalar {
		if values, ok := f.Values(s.key, filter.Eq); ok {
			pred = pred.WithAnyOf(s.field, values...)
		}
	}

	tags := []struct {
		key      filter.Key
		category climbing.Category
	}{
		{filter.KeyHandHold, climbing.CategoryHandHold},
		{filter.KeyFootwork, climbing.CategoryFootwork},
		{filter.KeyMove, climbing.CategoryMove},
	}
	for _, t := range tags {
		if values, ok := f.Values(t.key, filter.Eq); ok {
			pred = pred.WithTags(t.category, values...)
		}
	}

	if f.Removed != nil {
		pred = pred.WithRemoved(*f.Removed)
	}
	return pred
}

// FilterByStatus оставляет трассы, пройденные скалолазом (top), или
// опробованные, но не пройденные (fail). Порядок сохраняется.
func FilterByStatus(problems []*climbing.Problem, best map[shared.ProblemID]climbing.Level, status filter.Status) []*climbing.Problem {
	out := make([]*climbing.Problem, 0, len(problems))
	for _, p := range problems {
		level, tried := best[p.ID]
		switch status {
		case filter.StatusTop:
			if level == climbing.LevelTopped {
				out = append(out, p)
			}
		case filter.StatusFail:
			if tried && level != climbing.LevelTopped {
				out = append(out, p)
			}
		default:
			out = append(out, p)
		}
	}
	return out
}
