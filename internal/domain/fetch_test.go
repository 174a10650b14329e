package domain

import "testing"

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		from, to FetchStage
		want     bool
	}{
		{StageStart, StageCheckExisting, true},
		{StageCheckExisting, StageResolveRendition, true},
		{StageResolveRendition, StageFetchSubtitle, true},
		{StageResolveRendition, StageTranscode, true},
		{StageFetchSubtitle, StageTranscode, true},
		{StageTranscode, StageValidate, true},
		{StageValidate, StageDone, true},
		{StageCheckExisting, StageDone, true},
		{StageStart, StageTranscode, false},
		{StageTranscode, StageFetchSubtitle, false},
		{StageDone, StageDone, false},
		{StageDone, StageStart, false},
	}
	for _, c := range cases {
		if got := CanAdvance(c.from, c.to); got != c.want {
			t.Fatalf("CanAdvance(%s, %s): want %v, got %v", c.from, c.to, c.want, got)
		}
	}
}

func TestProgramEpisodesFor(t *testing.T) {
	p := Program{
		ID:           "26322",
		Title:        "Ævintýri",
		ForeignTitle: "Fairy Tales",
		Episodes: []ProgramEpisode{
			{ID: "7r0qq7", Title: "Garðabrúða", ManifestURL: "https://cdn/x.m3u8", FirstRun: "2018-01-18T17:29:00"},
		},
	}
	eps := p.EpisodesFor("720p")
	if len(eps) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(eps))
	}
	ep := eps[0]
	if ep.ProgramID != "26322" || ep.ProgramTitle != "Ævintýri" || ep.QualityLabel != "720p" {
		t.Fatalf("unexpected episode: %+v", ep)
	}
	if ep.FirstAirDate != "2018-01-18T17:29:00" {
		t.Fatalf("expected first air date to be carried over, got %q", ep.FirstAirDate)
	}
}
