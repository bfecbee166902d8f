// Package access decides what a principal may do with a catalog item, a
// reservation or a user account. A nil principal is an anonymous visitor.
package access

import (
	"item-rental/pkg/models"
)

type Action string

const (
	ItemCreate  Action = "ITEM_CREATE"
	ItemEdit    Action = "ITEM_EDIT"
	ItemDelete  Action = "ITEM_DELETE"
	ItemRent    Action = "ITEM_RENT"
	ItemReserve Action = "ITEM_RESERVE"

	ReservationApprove      Action = "RESERVATION_APPROVE"
	ReservationReject       Action = "RESERVATION_REJECT"
	ReservationManage       Action = "RESERVATION_MANAGE"
	ReservationReturn       Action = "RESERVATION_RETURN"
	ReservationManageReturn Action = "RESERVATION_MANAGE_RETURN"
	ReservationView         Action = "RESERVATION_VIEW"
	ReservationList         Action = "RESERVATION_LIST"

	UserManage Action = "USER_MANAGE"
)

func HasCapability(principal *models.User, action Action, subject any) bool {
	switch s := subject.(type) {
	case *models.Item:
		return itemCapability(principal, action, s)
	case *models.Reservation:
		return reservationCapability(principal, action, s)
	case *models.User:
		return action == UserManage && principal.IsAdmin()
	case nil:
		switch action {
		case ItemCreate, ReservationList, UserManage:
			return principal.IsAdmin()
		}
	}
	return false
}

func itemCapability(principal *models.User, action Action, item *models.Item) bool {
	if item == nil {
		return false
	}
	switch action {
	case ItemCreate, ItemEdit, ItemDelete:
		return principal.IsAdmin()
	case ItemRent:
		return principal.HasRole(models.RoleUser) && item.Quantity > 0
	case ItemReserve:
		return principal == nil && item.Quantity > 0
	}
	return false
}

func reservationCapability(principal *models.User, action Action, r *models.Reservation) bool {
	if principal == nil || r == nil {
		return false
	}
	switch action {
	case ReservationApprove, ReservationReject, ReservationManage:
		return principal.IsAdmin() && r.Status == models.StatusPending
	case ReservationReturn:
		return r.BorrowedBy(principal) && r.Status == models.StatusApproved && r.ReturnDate == nil
	case ReservationManageReturn:
		return principal.IsAdmin() && r.Status == models.StatusReturnPending
	case ReservationView:
		return r.BorrowedBy(principal) || principal.IsAdmin()
	case ReservationList:
		return principal.IsAdmin()
	}
	return false
}
