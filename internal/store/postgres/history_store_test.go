package postgres

import (
	"reflect"
	"testing"

	"github.com/alanyip/limitbot/internal/domain"
)

func TestBuildPatchQueryGuardsTerminalRows(t *testing.T) {
	status := domain.OrderStatusCancelled
	tx := "0xdeadbeef"

	tests := []struct {
		name      string
		patch     domain.OrderPatch
		wantQuery string
		wantArgs  []any
	}{
		{
			name:  "status and cancellation hash",
			patch: domain.OrderPatch{Status: &status, CancelledTx: &tx},
			wantQuery: `UPDATE orders SET updated_at = NOW(), status = $1, cancelled_tx = $2` +
				` WHERE id = $3 AND status NOT IN ('cancelled', 'executed')`,
			wantArgs: []any{"cancelled", "0xdeadbeef", "order-1"},
		},
		{
			name:  "status only",
			patch: domain.OrderPatch{Status: &status},
			wantQuery: `UPDATE orders SET updated_at = NOW(), status = $1` +
				` WHERE id = $2 AND status NOT IN ('cancelled', 'executed')`,
			wantArgs: []any{"cancelled", "order-1"},
		},
		{
			name:  "cancellation hash only",
			patch: domain.OrderPatch{CancelledTx: &tx},
			wantQuery: `UPDATE orders SET updated_at = NOW(), cancelled_tx = $1` +
				` WHERE id = $2 AND status NOT IN ('cancelled', 'executed')`,
			wantArgs: []any{"0xdeadbeef", "order-1"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			query, args := buildPatchQuery("order-1", tc.patch)
			if query != tc.wantQuery {
				t.Errorf("query = %q\nwant    %q", query, tc.wantQuery)
			}
			if !reflect.DeepEqual(args, tc.wantArgs) {
				t.Errorf("args = %v, want %v", args, tc.wantArgs)
			}
		})
	}
}
