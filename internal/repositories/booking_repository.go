package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrBookingNotFound = errors.New("booking not found")

// Booking is the slice of the marketplace booking record the chat service
// needs: who the two parties are.
type Booking struct {
	ID            int64 `db:"id"`
	CustomerID    int64 `db:"customer_id"`
	PartnerUserID int64 `db:"partner_user_id"`
}

// Party reports whether userID is one of the booking's two parties.
func (b Booking) Party(userID int64) bool {
	return userID == b.CustomerID || userID == b.PartnerUserID
}

// BookingRepository looks up bookings owned by the main backend.
type BookingRepository interface {
	GetBooking(ctx context.Context, bookingID int64) (Booking, error)
}

// BookingRepo reads the marketplace bookings table.
type BookingRepo struct {
	db *sqlx.DB
}

// NewBookingRepo constructs a BookingRepo.
func NewBookingRepo(db *sqlx.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

// GetBooking fetches the booking's two party ids.
func (r *BookingRepo) GetBooking(ctx context.Context, bookingID int64) (Booking, error) {
	var booking Booking
	err := r.db.GetContext(ctx, &booking, `SELECT id, customer_id, partner_user_id FROM bookings WHERE id=$1`, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrBookingNotFound
	}
	return booking, err
}
