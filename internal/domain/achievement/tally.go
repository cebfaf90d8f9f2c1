package achievement

import (
	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DERIVED COUNTS
// Все показатели считаются за один проход по таблице - без общего
// изменяемого состояния между вызовами.
// ══════════════════════════════════════════════════════════════════════════════

// Counts - счётчики по набору трасс.
type Counts struct {
	Problems int `json:"boulders"`
	Attempts int `json:"attempts"`

	// Взаимоисключающие достижения в окне.
	Flashes int `json:"flash"`
	Tops    int `json:"top"`
	Zones   int `json:"zone"`
	Fails   int `json:"fail"`

	// TopsAll - все пройденные трассы, включая флеши и повторы.
	TopsAll int `json:"tops_all"`

	// "Новые" достижения относительно истории до окна.
	NewFlashes int `json:"new_flashes"`
	NewTops    int `json:"new_tops"`
	NewZones   int `json:"new_zones"`
	NewFails   int `json:"new_fails"`
	HardTops   int `json:"hard_tops"`
}

func (c *Counts) add(s Summary) {
	c.Problems++
	c.Attempts += s.Attempts

	switch s.Achievement() {
	case AchievementFlash:
		c.Flashes++
	case AchievementTop:
		c.Tops++
	case AchievementZone:
		c.Zones++
	case AchievementFail:
		c.Fails++
	}

	if s.IsTopped() {
		c.TopsAll++
	}
	if s.PriorKnown && s.IsFlash() {
		c.NewFlashes++
	}
	if s.IsNewTop() {
		c.NewTops++
	}
	if s.IsNewZone() {
		c.NewZones++
	}
	if s.IsNewFail() {
		c.NewFails++
	}
	if s.IsHardTop() {
		c.HardTops++
	}
}

// Breakdown - счётчики по всем трассам и по рангам.
type Breakdown struct {
	All    Counts                   `json:"all"`
	ByRank map[climbing.Rank]Counts `json:"by_rank"`
	// PriorKnown - "новые" счётчики имеют смысл.
	PriorKnown bool `json:"prior_known"`
}

// Tally считает Breakdown за один проход.
func Tally(t *Table) Breakdown {
	b := Breakdown{
		ByRank:     make(map[climbing.Rank]Counts, len(climbing.Ranks)),
		PriorKnown: t.Len() > 0,
	}
	for _, r := range climbing.Ranks {
		b.ByRank[r] = Counts{}
	}

	for _, s := range t.Summaries() {
		b.All.add(s)
		c := b.ByRank[s.Rank]
		c.add(s)
		b.ByRank[s.Rank] = c
		if !s.PriorKnown {
			b.PriorKnown = false
		}
	}
	return b
}

// Grid возвращает плоскую сетку pb_<rank>_<achievement> и pb_all_<achievement>,
// где achievement - flash, top, zone, fail или try (все опробованные трассы).
func (b Breakdown) Grid() map[string]int {
	grid := make(map[string]int, (len(climbing.Ranks)+1)*(len(Achievements)+1))
	put := func(prefix string, c Counts) {
		grid[prefix+string(AchievementFlash)] = c.Flashes
		grid[prefix+string(AchievementTop)] = c.Tops
		grid[prefix+string(AchievementZone)] = c.Zones
		grid[prefix+string(AchievementFail)] = c.Fails
		grid[prefix+"try"] = c.Problems
	}
	for _, r := range climbing.Ranks {
		put("pb_"+r.String()+"_", b.ByRank[r])
	}
	put("pb_all_", b.All)
	return grid
}

// RankReport возвращает отчёт по одному рангу в формате страницы статистики.
// "new tops" не включают флеши.
func RankReport(c Counts) map[string]int {
	return map[string]int{
		"boulders":    c.Problems,
		"attempts":    c.Attempts,
		"new flashes": c.NewFlashes,
		"new tops":    c.NewTops - c.NewFlashes,
		"new zones":   c.NewZones,
		"new fail":    c.NewFails,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BY WALL TYPE
// ══════════════════════════════════════════════════════════════════════════════

// WallTypeStats - показатели по одному типу стены.
type WallTypeStats struct {
	Boulders int `json:"boulders"`
	// ByRank: ранг -> [новые топы, повторные топы, трассы].
	ByRank map[string][3]int `json:"by_rank"`
}

// ByWallType группирует таблицу по типу стены. Трассы без типа пропускаются.
func ByWallType(t *Table, problems []*climbing.Problem) map[string]WallTypeStats {
	index := make(map[shared.ProblemID]*climbing.Problem, len(problems))
	for _, p := range problems {
		index[p.ID] = p
	}

	groups := make(map[string]map[climbing.Rank]*Counts)
	for _, s := range t.Summaries() {
		p, ok := index[s.ProblemID]
		if !ok {
			continue
		}
		wt := p.WallType()
		if wt == "" {
			continue
		}
		if groups[wt] == nil {
			groups[wt] = make(map[climbing.Rank]*Counts)
		}
		if groups[wt][s.Rank] == nil {
			groups[wt][s.Rank] = &Counts{}
		}
		groups[wt][s.Rank].add(s)
	}

	out := make(map[string]WallTypeStats, len(groups))
	for wt, byRank := range groups {
		stats := WallTypeStats{ByRank: make(map[string][3]int, len(byRank))}
		for r, c := range byRank {
			stats.Boulders += c.Problems
			stats.ByRank[r.String()] = [3]int{c.NewTops, c.TopsAll - c.NewTops, c.Problems}
		}
		out[wt] = stats
	}
	return out
}
