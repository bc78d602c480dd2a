package domain

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Soft Drinks", "soft-drinks"},
		{"Soft Drinks & Juices", "soft-drinks-juices"},
		{"  Dairy  ", "dairy"},
		{"Aisle 7", "aisle-7"},
		{"!!!", ""},
		{"UPPER lower", "upper-lower"},
	}
	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Fatalf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValidPIN(t *testing.T) {
	for _, pin := range []string{"0000", "1234", "9999"} {
		if !ValidPIN(pin) {
			t.Fatalf("expected %q to be a valid PIN", pin)
		}
	}
	for _, pin := range []string{"", "123", "12345", "12a4", "12 4", "١٢٣٤"} {
		if ValidPIN(pin) {
			t.Fatalf("expected %q to be rejected", pin)
		}
	}
}

func TestPINDigestIsDeterministic(t *testing.T) {
	if PINDigest("1234") != PINDigest("1234") {
		t.Fatalf("digest must be deterministic")
	}
	if PINDigest("1234") == PINDigest("4321") {
		t.Fatalf("distinct PINs must not collide")
	}
	if len(PINDigest("1234")) != 64 {
		t.Fatalf("expected hex sha256, got %q", PINDigest("1234"))
	}
}

func TestRolePermissions(t *testing.T) {
	if !HasPermission(RoleAdmin, PermManageUsers) {
		t.Fatalf("admin must manage users")
	}
	if !HasPermission(RoleManager, PermViewReports) {
		t.Fatalf("manager must view reports")
	}
	if HasPermission(RoleManager, PermManageUsers) {
		t.Fatalf("manager must not manage users")
	}
	if !HasPermission(RoleCashier, PermMakeSales) {
		t.Fatalf("cashier must make sales")
	}
	if HasPermission(RoleCashier, PermViewReports) {
		t.Fatalf("cashier must not view reports")
	}
	if HasPermission("ghost", PermMakeSales) {
		t.Fatalf("unknown role must have no permissions")
	}

	if !ValidRole(RoleAdmin) || !ValidRole(RoleManager) || !ValidRole(RoleCashier) {
		t.Fatalf("known roles must validate")
	}
	if ValidRole("root") {
		t.Fatalf("unknown role must not validate")
	}

	perms := Permissions(RoleCashier)
	perms[0] = "tampered"
	if !HasPermission(RoleCashier, PermMakeSales) {
		t.Fatalf("Permissions must return a copy")
	}
}

func TestValidPaymentMethod(t *testing.T) {
	if !ValidPaymentMethod(PaymentMethodCash) || !ValidPaymentMethod(PaymentMethodMpesa) {
		t.Fatalf("known methods must validate")
	}
	if ValidPaymentMethod("card") || ValidPaymentMethod("") {
		t.Fatalf("unknown methods must be rejected")
	}
}
