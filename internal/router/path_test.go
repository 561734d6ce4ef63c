package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/ebookconv/internal/converr"
	"github.com/local/ebookconv/internal/format"
)

func TestSelectPath_AllPairs(t *testing.T) {
	const bad Path = 0
	want := map[format.Format]map[format.Format]Path{
		format.PDF:  {format.PDF: bad, format.EPUB: ViaIR, format.TXT: ViaIR, format.MOBI: TwoHopDelegated, format.AZW3: TwoHopDelegated},
		format.EPUB: {format.PDF: bad, format.EPUB: bad, format.TXT: ViaIR, format.MOBI: Direct, format.AZW3: Direct},
		format.TXT:  {format.PDF: bad, format.EPUB: ViaIR, format.TXT: bad, format.MOBI: TwoHopDelegated, format.AZW3: TwoHopDelegated},
		format.MOBI: {format.PDF: bad, format.EPUB: Delegated, format.TXT: TwoHopDelegated, format.MOBI: bad, format.AZW3: bad},
		format.AZW3: {format.PDF: bad, format.EPUB: Delegated, format.TXT: TwoHopDelegated, format.MOBI: bad, format.AZW3: bad},
	}
	for _, src := range format.All() {
		for _, tgt := range format.All() {
			t.Run(src.String()+"_to_"+tgt.String(), func(t *testing.T) {
				plan, err := SelectPath(src, tgt)
				if want[src][tgt] == bad {
					require.Error(t, err)
					assert.True(t, errors.Is(err, converr.ErrUnsupportedConversion))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, want[src][tgt], plan.Path)
				require.NotEmpty(t, plan.Stages)
				assert.Equal(t, src, plan.Stages[0].From)
				assert.Equal(t, tgt, plan.Stages[len(plan.Stages)-1].To)
			})
		}
	}
}

func TestSelectPath_SameFormatAlwaysUnsupported(t *testing.T) {
	for _, f := range format.All() {
		_, err := SelectPath(f, f)
		var uc *converr.UnsupportedConversionError
		require.True(t, errors.As(err, &uc), f.String())
		assert.Equal(t, "source and target formats are the same", uc.Reason)
	}
}

func TestSelectPath_TxtToMobiStages(t *testing.T) {
	plan, err := SelectPath(format.TXT, format.MOBI)
	require.NoError(t, err)
	assert.Equal(t, []Stage{
		{Kind: Local, From: format.TXT, To: format.EPUB},
		{Kind: Remote, From: format.EPUB, To: format.MOBI},
	}, plan.Stages)
	assert.Equal(t, "two_hop_delegated[local txt->epub, remote epub->mobi]", plan.String())
}

func TestSelectPath_MobiToTxtStages(t *testing.T) {
	plan, err := SelectPath(format.MOBI, format.TXT)
	require.NoError(t, err)
	assert.Equal(t, []Stage{
		{Kind: Remote, From: format.MOBI, To: format.EPUB},
		{Kind: Local, From: format.EPUB, To: format.TXT},
	}, plan.Stages)
}

func TestSelectPath_UnknownFormat(t *testing.T) {
	_, err := SelectPath(format.Format(0), format.EPUB)
	assert.True(t, errors.Is(err, converr.ErrUnsupportedConversion))
	_, err = SelectPath(format.TXT, format.Format(42))
	assert.True(t, errors.Is(err, converr.ErrUnsupportedConversion))
}
