// Package deprovision returns a device to initial setup after the central
// authority has rejected its credentials.
//
// Deprovisioning stops periodic activity, wipes the local store, removes the
// credential record and asks the host for a full restart. It runs at most
// once per process; the sync loop and the event channel may both trigger it.
package deprovision
