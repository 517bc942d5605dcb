package repo

import (
	"context"
	"database/sql"

	"campushustle/internal/domain"
)

func (r Repo) InsertBid(ctx context.Context, tx *sql.Tx, b domain.Bid) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bids(id,hustle_id,bidder_id,bid_amount,message,bidder_name,created_at) VALUES (?,?,?,?,?,?,?)`,
		b.ID, b.TaskID, b.BidderID, b.Amount, b.Message, nullable(b.BidderName), b.CreatedAt)
	return err
}

// ListBids returns the bids on a task, newest first.
func (r Repo) ListBids(ctx context.Context, taskID string) ([]domain.Bid, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,hustle_id,bidder_id,bid_amount,message,bidder_name,created_at
FROM bids WHERE hustle_id=? ORDER BY created_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Bid
	for rows.Next() {
		var b domain.Bid
		var name sql.NullString
		if err := rows.Scan(&b.ID, &b.TaskID, &b.BidderID, &b.Amount, &b.Message, &name, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.BidderName = name.String
		res = append(res, b)
	}
	return res, rows.Err()
}

// CountBidsByTask returns bid counts keyed by task id. Tasks without bids are absent.
func (r Repo) CountBidsByTask(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT hustle_id, count(*) FROM bids GROUP BY hustle_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		res[id] = n
	}
	return res, rows.Err()
}

func (r Repo) HasBidTx(ctx context.Context, tx *sql.Tx, taskID, bidderID string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM bids WHERE hustle_id=? AND bidder_id=?`, taskID, bidderID).Scan(&n)
	return n > 0, err
}
